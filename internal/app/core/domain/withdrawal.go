package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Channel 出款通道
type Channel string

const (
	// Airtel Money，USSD 代碼 74
	ChannelAirtel Channel = "74"
	// Moov Money，USSD 代碼 62
	ChannelMoov Channel = "62"
	// Singpay 通用 payout
	ChannelGeneric Channel = "singpay"
)

// ParseChannel 將路由參數轉成 Channel
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelAirtel, ChannelMoov, ChannelGeneric:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

// IsUSSD 74 與 62 走 USSD，其餘走 payout
func (c Channel) IsUSSD() bool {
	return c == ChannelAirtel || c == ChannelMoov
}

func (c Channel) Operator() string {
	switch c {
	case ChannelAirtel:
		return "airtel"
	case ChannelMoov:
		return "moov"
	case ChannelGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// WithdrawalState 出款狀態機
//
//	Validating -> Debited -> Dispatching -> Confirmed
//	Validating -> Debited -> Dispatching -> Reverted
//	Validating -> Rejected
type WithdrawalState string

const (
	StateValidating  WithdrawalState = "validating"
	StateDebited     WithdrawalState = "debited"
	StateDispatching WithdrawalState = "dispatching"
	StateConfirmed   WithdrawalState = "confirmed"
	StateReverted    WithdrawalState = "reverted"
	StateRejected    WithdrawalState = "rejected"
)

// WithdrawalRequest 單次出款請求，不保留
type WithdrawalRequest struct {
	Channel Channel
	Amount  decimal.Decimal
	Phone   string
}

// Validate 驗證金額與電話，回傳正規化後的電話
func (r *WithdrawalRequest) Validate() (string, error) {
	if _, err := ParseChannel(string(r.Channel)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := checkAmount(r.Amount); err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	phone := NormalizePhone(r.Phone)
	if phone == "" {
		return "", fmt.Errorf("%w: %w", ErrValidation, ErrInvalidPhone)
	}
	return phone, nil
}

// 金額上下限：XAF 沒有輔幣，保留兩位小數給其他幣別
const (
	MaxAmountScale         = 2
	MaxAmountIntegerDigits = 18

	// maxInputScale 超過這個位數直接拒絕，不嘗試去掉尾端的 0
	maxInputScale = 20
)

// checkAmount 先只看 coefficient 與 exponent，確定位數有界後才做比較
// 否則像 1e-100000000 這種輸入在比較時會 rescale 成巨大的整數
func checkAmount(amount decimal.Decimal) error {
	if exp := amount.Exponent(); exp < -MaxAmountScale {
		// 500.000 這類尾端為 0 的寫法仍然接受
		if exp < -maxInputScale || !amount.Equal(amount.Truncate(MaxAmountScale)) {
			return ErrAmountPrecision
		}
	}
	if int64(amount.NumDigits())+int64(amount.Exponent()) > MaxAmountIntegerDigits {
		return ErrAmountTooLarge
	}
	if !amount.IsPositive() {
		return ErrAmountMustBePositive
	}
	return nil
}

// PSPResponse PSP 回應的統一格式
//
// OK 代表 PSP 確認成功；TransportError 代表根本沒拿到 PSP 的回應 (timeout/網路錯誤)，
// 此時 PSP 端可能已經執行了轉帳。
type PSPResponse struct {
	OK             bool           `json:"ok"`
	Status         int            `json:"status"`
	Body           map[string]any `json:"body"`
	TransportError bool           `json:"-"`
}

// Outcome 出款結果 (Confirmed 或 Reverted)
type Outcome struct {
	TransactionID uuid.UUID
	Channel       Channel
	State         WithdrawalState
	Amount        decimal.Decimal
	// Balance 結算後的內部餘額
	Balance decimal.Decimal
	PSP     *PSPResponse
	// Wallet PSP 自己回報的錢包資訊，取得失敗時為 nil
	Wallet map[string]any
	// Ambiguous 傳輸層失敗後已補回，但 PSP 端實際狀態未知，需要人工對帳
	Ambiguous bool
}

func (o *Outcome) Confirmed() bool {
	return o.State == StateConfirmed
}

// Reference 由 TransactionID 推導 PSP 的唯一參考號，同一筆出款重送時沿用同一個
func Reference(channel Channel, txID uuid.UUID) string {
	if channel.IsUSSD() {
		return "lyra_ussd_" + txID.String()
	}
	return "lyra_" + txID.String()
}
