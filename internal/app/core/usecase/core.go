package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-payout/internal/metrics"
)

// WithdrawUseCase 出款流程：驗證 -> 扣款 -> 送 PSP -> 確認或補回
//
// 結構:
//
//	ledger: 內部帳本
//	gateway: PSP 客戶端
//	journal: 稽核紀錄 (可為 nil)
//	mu: 單一帳戶的臨界區，扣款到對帳整段持有寫鎖，查餘額持有讀鎖
type WithdrawUseCase struct {
	ledger  Ledger
	gateway Gateway
	journal Journal
	logger  *zap.Logger
	enabled bool

	mu sync.RWMutex

	now   func() time.Time
	newID func() uuid.UUID
}

// Option 設定 WithdrawUseCase 的選項函數
type Option func(*WithdrawUseCase)

func WithJournal(j Journal) Option {
	return func(u *WithdrawUseCase) {
		u.journal = j
	}
}

// WithWithdrawalsEnabled 對應 ENABLE_WITHDRAWAL
func WithWithdrawalsEnabled(enabled bool) Option {
	return func(u *WithdrawUseCase) {
		u.enabled = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(u *WithdrawUseCase) {
		u.now = now
	}
}

func NewWithdrawUseCase(ledger Ledger, gateway Gateway, logger *zap.Logger, opts ...Option) *WithdrawUseCase {
	u := &WithdrawUseCase{
		ledger:  ledger,
		gateway: gateway,
		logger:  logger,
		enabled: true,
		now:     time.Now,
		newID:   uuid.New,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Enabled 出款功能是否開啟
func (u *WithdrawUseCase) Enabled() bool {
	return u.enabled
}

// Withdraw 處理一筆出款
//
// 參數:
//
//	ctx: 上下文
//	req: 出款請求
//
// 回傳:
//
//	*domain.Outcome: Confirmed 或 Reverted 的結果
//	error: ErrWithdrawalsDisabled / ErrValidation / ErrInsufficientBalance 或內部錯誤，此時帳本未被異動
func (u *WithdrawUseCase) Withdraw(ctx context.Context, req domain.WithdrawalRequest) (*domain.Outcome, error) {
	if !u.enabled {
		return nil, domain.ErrWithdrawalsDisabled
	}

	u.logger.Debug("withdrawal received",
		zap.String("channel", string(req.Channel)),
		zap.String("state", string(domain.StateValidating)))
	phone, err := req.Validate()
	if err != nil {
		u.logger.Warn("withdrawal rejected",
			zap.String("channel", string(req.Channel)),
			zap.Error(err))
		metrics.WithdrawalsTotal.WithLabelValues(req.Channel.Operator(), string(domain.StateRejected)).Inc()
		return nil, err
	}

	outcome, err := u.settle(ctx, req, phone)
	if err != nil {
		return nil, err
	}

	// 鎖已釋放；PSP 錢包資訊只做展示，失敗不影響結果
	wallet, err := u.gateway.FetchWalletInfo(ctx)
	if err != nil {
		u.logger.Warn("wallet enrichment failed",
			zap.String("transaction_id", outcome.TransactionID.String()),
			zap.Error(err))
	} else {
		outcome.Wallet = wallet
	}

	return outcome, nil
}

// settle 在臨界區內完成 扣款 -> 送出 -> 對帳
func (u *WithdrawUseCase) settle(ctx context.Context, req domain.WithdrawalRequest, phone string) (*domain.Outcome, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	// 扣款之後不可被取消，否則可能停在已扣款未補回的狀態
	ctx = context.WithoutCancel(ctx)

	txID := u.newID()
	logger := u.logger.With(
		zap.String("transaction_id", txID.String()),
		zap.String("channel", string(req.Channel)),
		zap.String("amount", req.Amount.String()))

	// 1. 扣款
	balance, err := u.ledger.Debit(ctx, txID, req.Amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			logger.Warn("withdrawal rejected: insufficient balance")
			metrics.WithdrawalsTotal.WithLabelValues(req.Channel.Operator(), string(domain.StateRejected)).Inc()
		} else {
			logger.Error("ledger debit failed", zap.Error(err))
		}
		return nil, err
	}
	logger.Info("ledger debited",
		zap.String("state", string(domain.StateDebited)),
		zap.String("balance", balance.String()))

	// 2. 送 PSP
	reference := domain.Reference(req.Channel, txID)
	logger.Debug("dispatching to psp",
		zap.String("state", string(domain.StateDispatching)),
		zap.String("reference", reference))
	psp := u.dispatch(ctx, req.Channel, req.Amount, phone, reference)

	outcome := &domain.Outcome{
		TransactionID: txID,
		Channel:       req.Channel,
		Amount:        req.Amount,
		PSP:           psp,
	}

	// 3. 對帳
	if psp.OK {
		outcome.State = domain.StateConfirmed
		outcome.Balance = balance
		logger.Info("withdrawal confirmed",
			zap.String("reference", reference),
			zap.Int("psp_status", psp.Status))
	} else {
		restored, err := u.ledger.Credit(ctx, txID, req.Amount)
		if err != nil {
			// 停在已扣款未補回，留下紀錄供人工對帳
			outcome.State = domain.StateDebited
			outcome.Balance = balance
			outcome.Ambiguous = true
			logger.Error("compensating credit failed",
				zap.String("state", string(outcome.State)),
				zap.String("reference", reference),
				zap.Int("psp_status", psp.Status),
				zap.Error(err))
			metrics.AmbiguousWithdrawalsTotal.WithLabelValues(req.Channel.Operator()).Inc()
			u.record(ctx, outcome, phone, logger)
			return nil, fmt.Errorf("compensating credit: %w", err)
		}
		outcome.State = domain.StateReverted
		outcome.Balance = restored
		outcome.Ambiguous = psp.TransportError
		logger.Warn("psp failed, amount re-credited",
			zap.String("reference", reference),
			zap.Int("psp_status", psp.Status),
			zap.Bool("ambiguous", outcome.Ambiguous),
			zap.String("balance", restored.String()))
		if outcome.Ambiguous {
			metrics.AmbiguousWithdrawalsTotal.WithLabelValues(req.Channel.Operator()).Inc()
		}
	}

	metrics.WithdrawalsTotal.WithLabelValues(req.Channel.Operator(), string(outcome.State)).Inc()
	metrics.LedgerBalance.Set(outcome.Balance.InexactFloat64())

	u.record(ctx, outcome, phone, logger)
	return outcome, nil
}

func (u *WithdrawUseCase) dispatch(ctx context.Context, channel domain.Channel, amount decimal.Decimal, phone, reference string) *domain.PSPResponse {
	var psp *domain.PSPResponse
	if channel.IsUSSD() {
		psp = u.gateway.LaunchUSSD(ctx, string(channel), amount, phone, reference)
	} else {
		psp = u.gateway.SubmitPayout(ctx, amount, phone, reference)
	}
	if psp == nil {
		psp = &domain.PSPResponse{
			Status: 500,
			Body:   map[string]any{"error": "empty psp response"},
		}
	}
	return psp
}

func (u *WithdrawUseCase) record(ctx context.Context, outcome *domain.Outcome, phone string, logger *zap.Logger) {
	if u.journal == nil {
		return
	}
	rec := domain.NewWithdrawalRecord(outcome, phone, u.now())
	if err := u.journal.Record(ctx, rec); err != nil {
		logger.Error("failed to record withdrawal", zap.Error(err))
	}
}

// BalanceView 餘額查詢結果
type BalanceView struct {
	// Balance 內部帳本餘額 (唯一可信來源)
	Balance decimal.Decimal
	// Wallet PSP 回傳的原始錢包資訊
	Wallet map[string]any
	// WalletBalance 依 WalletSchemaV1 取出的顯示用餘額
	WalletBalance any
	// WalletErr 取 PSP 錢包資訊失敗的原因
	WalletErr error
}

// Balance 取得內部餘額，並嘗試附上 PSP 回報的錢包資訊
func (u *WithdrawUseCase) Balance(ctx context.Context) (*BalanceView, error) {
	balance, err := u.LedgerBalance(ctx)
	if err != nil {
		return nil, err
	}

	view := &BalanceView{Balance: balance}
	wallet, err := u.gateway.FetchWalletInfo(ctx)
	if err != nil {
		view.WalletErr = err
		view.WalletBalance = domain.UnknownBalance
		return view, nil
	}
	view.Wallet = wallet
	view.WalletBalance = domain.ExtractWalletBalance(wallet)
	return view, nil
}

// LedgerBalance 只讀內部帳本，不會看到出款處理中的中間狀態
func (u *WithdrawUseCase) LedgerBalance(ctx context.Context) (decimal.Decimal, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.ledger.Peek(ctx)
}

// Recent 最近的出款紀錄
func (u *WithdrawUseCase) Recent(ctx context.Context, limit int) ([]domain.WithdrawalRecord, error) {
	if u.journal == nil {
		return []domain.WithdrawalRecord{}, nil
	}
	return u.journal.Recent(ctx, limit)
}
