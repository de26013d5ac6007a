package singpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-payout/internal/metrics"
)

const (
	DefaultWalletTimeout = 15 * time.Second
	DefaultPayoutTimeout = 30 * time.Second
)

// Config Singpay 連線設定
type Config struct {
	GatewayBase  string `yaml:"gateway_base" env:"GATEWAY_BASE"`
	WalletID     string `yaml:"wallet_id" env:"WALLET_ID"`
	MerchantID   string `yaml:"merchant_id" env:"MERCHANT_MOOV"`
	ClientID     string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET"`
	Currency     string `yaml:"currency" env:"PSP_CURRENCY"`

	WalletTimeout time.Duration `yaml:"wallet_timeout" env:"PSP_WALLET_TIMEOUT"`
	PayoutTimeout time.Duration `yaml:"payout_timeout" env:"PSP_PAYOUT_TIMEOUT"`

	// StrictUSSDSuccess USSD 除了 HTTP 2xx 之外，也要求 PSP 回 status=success (與 payout 一致)
	StrictUSSDSuccess bool `yaml:"strict_ussd_success" env:"PSP_STRICT_USSD_SUCCESS"`
}

// Client Singpay PSP 客戶端
type Client struct {
	config     Config
	appName    string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption 定義了 Client 的配置選項函數
type ClientOption func(*Client)

// WithHTTPClient 替換底層 http.Client (timeout 由每次呼叫的 context 控制)
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(cfg Config, appName string, logger *zap.Logger, opts ...ClientOption) *Client {
	if cfg.WalletTimeout <= 0 {
		cfg.WalletTimeout = DefaultWalletTimeout
	}
	if cfg.PayoutTimeout <= 0 {
		cfg.PayoutTimeout = DefaultPayoutTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = "XAF"
	}
	c := &Client{
		config:     cfg,
		appName:    appName,
		httpClient: &http.Client{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildAuthHeaders 組出每個請求都要帶的 header，只依賴設定
func (c *Client) BuildAuthHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+c.config.WalletID)
	h.Set("X-Merchant-Id", c.config.MerchantID)
	h.Set("X-App-Name", c.appName)
	if c.config.ClientID != "" {
		h.Set("x-client-id", c.config.ClientID)
		h.Set("x-client-secret", c.config.ClientSecret)
	}
	return h
}

// FetchWalletInfo 查詢 PSP 錢包資訊，只做展示用途
func (c *Client) FetchWalletInfo(ctx context.Context) (map[string]any, error) {
	url := fmt.Sprintf("%s/portefeuille/api/%s", c.config.GatewayBase, c.config.WalletID)

	start := time.Now()
	status, body, err := c.do(ctx, http.MethodGet, url, c.config.WalletTimeout, nil)
	ok := err == nil && isSuccess(status)
	observe("wallet", start, ok)

	if err != nil {
		c.logger.Warn("singpay wallet fetch failed", zap.Error(err))
		return nil, fmt.Errorf("fetch wallet info: %w", err)
	}
	if !isSuccess(status) {
		msg := strconv.Itoa(status)
		if m, ok := body["message"].(string); ok && m != "" {
			msg = m
		}
		c.logger.Warn("singpay wallet fetch failed", zap.Int("status", status), zap.String("message", msg))
		return nil, fmt.Errorf("failed to fetch wallet info: %s", msg)
	}
	return body, nil
}

// ussdPayload USSD 出款請求
type ussdPayload struct {
	Amount    json.Number `json:"amount"`
	Currency  string      `json:"currency"`
	Phone     string      `json:"phone"`
	Merchant  string      `json:"merchant"`
	WalletID  string      `json:"wallet_id"`
	Reference string      `json:"reference"`
	Note      string      `json:"note"`
}

// LaunchUSSD 對指定營運商代碼 (74 Airtel / 62 Moov) 發起 USSD 出款
func (c *Client) LaunchUSSD(ctx context.Context, code string, amount decimal.Decimal, phone, reference string) *domain.PSPResponse {
	payload := ussdPayload{
		Amount:    json.Number(amount.String()),
		Currency:  c.config.Currency,
		Phone:     phone,
		Merchant:  c.config.MerchantID,
		WalletID:  c.config.WalletID,
		Reference: reference,
		Note:      fmt.Sprintf("%s - USSD %s", c.appName, code),
	}
	url := fmt.Sprintf("%s/%s/paiement", c.config.GatewayBase, code)

	c.logger.Info("launching ussd",
		zap.String("code", code),
		zap.String("amount", amount.String()),
		zap.String("phone", phone),
		zap.String("reference", reference))

	start := time.Now()
	status, body, err := c.do(ctx, http.MethodPost, url, c.config.PayoutTimeout, payload)
	if err != nil {
		observe("ussd", start, false)
		c.logger.Error("ussd request failed", zap.String("code", code), zap.Error(err))
		return transportFailure(err)
	}

	ok := isSuccess(status)
	if c.config.StrictUSSDSuccess {
		ok = ok && providerSucceeded(body)
	}
	observe("ussd", start, ok)

	c.logger.Info("ussd response",
		zap.String("code", code),
		zap.Int("status", status),
		zap.Bool("ok", ok),
		zap.Any("body", body))
	return &domain.PSPResponse{OK: ok, Status: status, Body: body}
}

type payoutDestination struct {
	Phone string `json:"phone"`
}

// payoutPayload 通用 payout 請求
type payoutPayload struct {
	Amount            json.Number       `json:"amount"`
	Currency          string            `json:"currency"`
	WalletID          string            `json:"wallet_id"`
	MerchantReference string            `json:"merchant_reference"`
	Destination       payoutDestination `json:"destination"`
	Note              string            `json:"note"`
}

// SubmitPayout 通用出款，HTTP 2xx 且 PSP 回 status=success 才算成功
func (c *Client) SubmitPayout(ctx context.Context, amount decimal.Decimal, phone, reference string) *domain.PSPResponse {
	payload := payoutPayload{
		Amount:            json.Number(amount.String()),
		Currency:          c.config.Currency,
		WalletID:          c.config.WalletID,
		MerchantReference: reference,
		Destination:       payoutDestination{Phone: phone},
		Note:              fmt.Sprintf("%s - retrait", c.appName),
	}
	url := c.config.GatewayBase + "/payouts"

	c.logger.Info("submitting payout",
		zap.String("amount", amount.String()),
		zap.String("phone", phone),
		zap.String("reference", reference))

	start := time.Now()
	status, body, err := c.do(ctx, http.MethodPost, url, c.config.PayoutTimeout, payload)
	if err != nil {
		observe("payout", start, false)
		c.logger.Error("payout request failed", zap.Error(err))
		return transportFailure(err)
	}

	ok := isSuccess(status) && providerSucceeded(body)
	observe("payout", start, ok)

	c.logger.Info("payout response",
		zap.Int("status", status),
		zap.Bool("ok", ok),
		zap.Any("body", body))
	return &domain.PSPResponse{OK: ok, Status: status, Body: body}
}

// do 送出請求；只有網路錯誤或 timeout 會回 error，非 JSON 的回應 body 為 nil
func (c *Client) do(ctx context.Context, method, url string, timeout time.Duration, payload any) (int, map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header = c.BuildAuthHeaders()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = nil
	}
	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func providerSucceeded(body map[string]any) bool {
	s, _ := body["status"].(string)
	return s == "success"
}

func transportFailure(err error) *domain.PSPResponse {
	return &domain.PSPResponse{
		OK:             false,
		Status:         http.StatusInternalServerError,
		Body:           map[string]any{"error": err.Error()},
		TransportError: true,
	}
}

func observe(operation string, start time.Time, ok bool) {
	metrics.PSPRequestDuration.
		WithLabelValues(operation, strconv.FormatBool(ok)).
		Observe(time.Since(start).Seconds())
}

var _ usecase.Gateway = (*Client)(nil)
