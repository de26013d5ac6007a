package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType 分錄類型
type EntryType uint8

const (
	// 扣款 (出款前先扣)
	EntryTypeDebit EntryType = 1
	// 補回 (PSP 失敗時的補償)
	EntryTypeCredit EntryType = 2
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeDebit:
		return "debit"
	case EntryTypeCredit:
		return "credit"
	default:
		return "unknown"
	}
}

// Entry 帳本分錄
type Entry struct {
	// Sequence: 帳本分配的順序號 (1, 2, 3...)
	Sequence uint64 `json:"sequence"`
	// TransactionID: 出款請求的追蹤號，同一筆出款的扣款與補回共用
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     int64           `json:"created_at"`
	Type          EntryType       `json:"type"`
}

// EntryKey 冪等檢查用的 key：同一 TransactionID 的同一類分錄只能套用一次
type EntryKey struct {
	TransactionID uuid.UUID
	Type          EntryType
}

func (e *Entry) Key() EntryKey {
	return EntryKey{TransactionID: e.TransactionID, Type: e.Type}
}
