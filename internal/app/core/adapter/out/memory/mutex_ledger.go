package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/usecase"
)

// MutexLedger 是一個使用 Mutex 實現的單帳戶帳本
//
// 結構:
//
//	account: 內部錢包
//	mu: Mutex 用於保護帳戶資料
//	processedEntries: 已套用過的分錄 (冪等)，超過保留時間會被清掉
//	sequence: 分錄順序號
type MutexLedger struct {
	account *domain.Account
	mu      sync.RWMutex
	// 已套用過的分錄
	processedEntries *entryIndex
	sequence         uint64
	now              func() time.Time
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	initial: 程序啟動時的初始餘額
//	opts: 選項，例如 WithEntryRetention
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
func NewMutexLedger(initial decimal.Decimal, opts ...Option) *MutexLedger {
	o := newOptions(opts)
	return &MutexLedger{
		account:          domain.NewAccount(1, initial),
		processedEntries: newEntryIndex(o.retention),
		now:              o.now,
	}
}

// Debit 扣款
func (m *MutexLedger) Debit(ctx context.Context, txID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	return m.post(&domain.Entry{TransactionID: txID, Amount: amount, Type: domain.EntryTypeDebit})
}

// Credit 補回
func (m *MutexLedger) Credit(ctx context.Context, txID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	return m.post(&domain.Entry{TransactionID: txID, Amount: amount, Type: domain.EntryTypeCredit})
}

// Peek 取得目前餘額
func (m *MutexLedger) Peek(ctx context.Context) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account.Balance, nil
}

// post 套用單筆分錄 (Level 1: Mutex Lock)
//
// 參數:
//
//	entry: 分錄
//
// 回傳:
//
//	decimal.Decimal: 套用後餘額
//	error: 處理錯誤 (如餘額不足)
func (m *MutexLedger) post(entry *domain.Entry) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.processedEntries.contains(entry.Key()) {
		return m.account.Balance, nil
	}

	var err error
	switch entry.Type {
	case domain.EntryTypeDebit:
		err = m.account.Debit(entry.Amount)
	case domain.EntryTypeCredit:
		err = m.account.Credit(entry.Amount)
	default:
		return m.account.Balance, nil
	}
	if err != nil {
		return m.account.Balance, err
	}

	m.sequence++
	entry.Sequence = m.sequence
	now := m.now()
	entry.CreatedAt = now.UnixNano()
	m.processedEntries.add(entry.Key(), now)
	return m.account.Balance, nil
}

var _ usecase.Ledger = (*MutexLedger)(nil)
