package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalRecord 出款稽核紀錄，只做追蹤，不會回放進帳本
type WithdrawalRecord struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Channel       Channel         `json:"channel"`
	Phone         string          `json:"phone"`
	Amount        decimal.Decimal `json:"amount"`
	State         WithdrawalState `json:"state"`
	Reference     string          `json:"reference"`
	PSPStatus     int             `json:"psp_status"`
	Ambiguous     bool            `json:"ambiguous"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewWithdrawalRecord 由結果組出稽核紀錄
func NewWithdrawalRecord(o *Outcome, phone string, at time.Time) *WithdrawalRecord {
	rec := &WithdrawalRecord{
		TransactionID: o.TransactionID,
		Channel:       o.Channel,
		Phone:         phone,
		Amount:        o.Amount,
		State:         o.State,
		Reference:     Reference(o.Channel, o.TransactionID),
		Ambiguous:     o.Ambiguous,
		BalanceAfter:  o.Balance,
		CreatedAt:     at.UTC(),
	}
	if o.PSP != nil {
		rec.PSPStatus = o.PSP.Status
	}
	return rec
}
