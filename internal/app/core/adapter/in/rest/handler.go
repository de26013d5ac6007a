package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/usecase"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

type Handler struct {
	withdraw    *usecase.WithdrawUseCase
	appName     string
	gatewayBase string
	logger      *zap.Logger
	now         func() time.Time
}

func NewHandler(withdraw *usecase.WithdrawUseCase, appName, gatewayBase string, logger *zap.Logger) *Handler {
	return &Handler{
		withdraw:    withdraw,
		appName:     appName,
		gatewayBase: gatewayBase,
		logger:      logger,
		now:         time.Now,
	}
}

// Balance GET /api/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	view, err := h.withdraw.Balance(r.Context())
	if err != nil {
		h.logger.Error("failed to read ledger balance", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "internal error",
			"error":   err.Error(),
		})
		return
	}
	if view.WalletErr != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"message": "failed to fetch psp wallet",
			"error":   view.WalletErr.Error(),
			"balance": amountJSON(view.Balance),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":      view.Wallet,
		"balance":     amountJSON(view.Balance),
		"psp_balance": view.WalletBalance,
	})
}

// Withdraw POST /api/retrait/{channel}，channel 為 74 (Airtel)、62 (Moov) 或 singpay
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if !h.withdraw.Enabled() {
		writeJSON(w, http.StatusForbidden, map[string]any{"message": "withdrawals disabled"})
		return
	}

	channel, err := domain.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "unknown channel"})
		return
	}

	req, err := decodeWithdrawal(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "amount and phone required",
			"error":   err.Error(),
		})
		return
	}
	req.Channel = channel

	outcome, err := h.withdraw.Withdraw(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrWithdrawalsDisabled):
		writeJSON(w, http.StatusForbidden, map[string]any{"message": "withdrawals disabled"})
		return
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "amount and phone required",
			"error":   err.Error(),
		})
		return
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "insufficient balance"})
		return
	default:
		h.logger.Error("withdrawal error",
			zap.String("channel", string(channel)),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "internal error",
			"error":   err.Error(),
		})
		return
	}

	status := http.StatusOK
	message := "failed"
	if outcome.Confirmed() {
		message = "payout initiated"
		if channel.IsUSSD() {
			message = "ussd launched"
		}
	} else {
		status = http.StatusBadGateway
		if outcome.PSP.Status >= http.StatusBadRequest {
			status = outcome.PSP.Status
		}
	}

	resp := map[string]any{
		"message":        message,
		"transaction_id": outcome.TransactionID.String(),
		"psp":            outcome.PSP.Body,
		"balance":        amountJSON(outcome.Balance),
		"wallet":         outcome.Wallet,
	}
	if outcome.Ambiguous {
		resp["ambiguous"] = true
	}
	writeJSON(w, status, resp)
}

// Withdrawals GET /api/withdrawals?limit=N
func (h *Handler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid limit"})
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.withdraw.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read withdrawal journal", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"message": "internal error",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawals": records})
}

// Status GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var balance any
	if b, err := h.withdraw.LedgerBalance(r.Context()); err == nil {
		balance = amountJSON(b)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"app":                 h.appName,
		"withdrawals_enabled": h.withdraw.Enabled(),
		"gateway":             h.gatewayBase,
		"lyra_wallet":         balance,
	})
}

// Test GET /api/test，keep-alive ping 的目標
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   h.appName + " API is up",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

// decodeWithdrawal amount 與 phone 接受 JSON 數字或字串
func decodeWithdrawal(r *http.Request) (domain.WithdrawalRequest, error) {
	var body map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return domain.WithdrawalRequest{}, errors.New("invalid json body")
	}

	amount, err := parseAmount(body["amount"])
	if err != nil {
		return domain.WithdrawalRequest{}, err
	}
	return domain.WithdrawalRequest{
		Amount: amount,
		Phone:  stringify(body["phone"]),
	}, nil
}

func parseAmount(v any) (decimal.Decimal, error) {
	switch a := v.(type) {
	case json.Number:
		return decimal.NewFromString(a.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(a))
	default:
		return decimal.Zero, errors.New("amount is required")
	}
}

func stringify(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case json.Number:
		return p.String()
	default:
		return ""
	}
}

// amountJSON 以 JSON 數字輸出金額
func amountJSON(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
