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

// entryResult 核心迴圈處理完的結果
type entryResult struct {
	Balance decimal.Decimal
	Err     error
}

// entryRequest 分錄請求包裝 channel，讓呼叫端可以等待結果
// Entry 為 nil 代表只查餘額
type entryRequest struct {
	Entry  *domain.Entry
	Result chan entryResult
}

// LMAXLedger 單一消費者帳本：所有讀寫都經過同一個 goroutine，帳戶資料不需要鎖
type LMAXLedger struct {
	account *domain.Account
	// 已套用過的分錄，只有核心迴圈會碰
	processedEntries *entryIndex
	sequence         uint64
	now              func() time.Time
	// 輸送帶 負責接收分錄
	entryChan chan *entryRequest
	// 核心迴圈結束後關閉
	done chan struct{}
	// Pool 減少 GC 壓力
	requestPool sync.Pool
}

// NewLMAXLedger 建立一個新的 LMAXLedger 實例，需呼叫 Start 後才能使用
//
// 參數:
//
//	initial: 初始餘額
//	opts: 選項，例如 WithEntryRetention
//
// 回傳:
//
//	*LMAXLedger: LMAXLedger 實例
func NewLMAXLedger(initial decimal.Decimal, opts ...Option) *LMAXLedger {
	o := newOptions(opts)
	return &LMAXLedger{
		account:          domain.NewAccount(1, initial),
		processedEntries: newEntryIndex(o.retention),
		now:              o.now,
		entryChan:        make(chan *entryRequest, 1000), // Buffer 1000
		done:             make(chan struct{}),
		requestPool: sync.Pool{
			New: func() interface{} {
				return &entryRequest{
					Result: make(chan entryResult, 1),
				}
			},
		},
	}
}

// Start 啟動核心引擎 (非同步)，ctx 結束時會把剩下的請求處理完再停止
// ctx 應該只代表帳本本身的生命週期，停止後的 Debit/Credit 都會回 ErrLedgerStopped
func (l *LMAXLedger) Start(ctx context.Context) {
	go l.run(ctx)
}

// Done 核心迴圈結束後關閉
func (l *LMAXLedger) Done() <-chan struct{} {
	return l.done
}

// Debit 扣款
func (l *LMAXLedger) Debit(ctx context.Context, txID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	return l.submit(ctx, &domain.Entry{TransactionID: txID, Amount: amount, Type: domain.EntryTypeDebit})
}

// Credit 補回
func (l *LMAXLedger) Credit(ctx context.Context, txID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	return l.submit(ctx, &domain.Entry{TransactionID: txID, Amount: amount, Type: domain.EntryTypeCredit})
}

// Peek 取得目前餘額，同樣經過核心迴圈以免讀到處理中的狀態
func (l *LMAXLedger) Peek(ctx context.Context) (decimal.Decimal, error) {
	return l.submit(ctx, nil)
}

// submit PostEntry(等待) -> Channel -> Run Loop (核心) -> Account Update -> Result Channel -> 呼叫端(收到結果)
func (l *LMAXLedger) submit(ctx context.Context, entry *domain.Entry) (decimal.Decimal, error) {
	req := l.requestPool.Get().(*entryRequest)
	req.Entry = entry
	// 清空 Channel
	select {
	case <-req.Result:
	default:
	}

	select {
	case l.entryChan <- req:
	case <-l.done:
		l.requestPool.Put(req)
		return decimal.Zero, domain.ErrLedgerStopped
	case <-ctx.Done():
		l.requestPool.Put(req)
		return decimal.Zero, ctx.Err()
	}

	// 已進輸送帶就必須等結果，否則會不知道分錄是否已套用
	var res entryResult
	select {
	case res = <-req.Result:
	case <-l.done:
		// 迴圈結束前處理過的請求，結果一定已經在 channel 裡
		select {
		case res = <-req.Result:
		default:
			return decimal.Zero, domain.ErrLedgerStopped
		}
	}
	req.Entry = nil
	l.requestPool.Put(req)
	return res.Balance, res.Err
}

func (l *LMAXLedger) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的請求處理完
			l.drain()
			return
		case req := <-l.entryChan:
			l.process(req)
		}
	}
}

func (l *LMAXLedger) drain() {
	for {
		select {
		case req := <-l.entryChan:
			l.process(req)
		default:
			return
		}
	}
}

// process 處理單筆請求並回傳結果
func (l *LMAXLedger) process(req *entryRequest) {
	entry := req.Entry
	if entry == nil {
		req.Result <- entryResult{Balance: l.account.Balance}
		return
	}

	// 0. Idempotency Check (Thread Safe in Loop)
	if l.processedEntries.contains(entry.Key()) {
		req.Result <- entryResult{Balance: l.account.Balance}
		return
	}

	// 1. 執行業務邏輯
	var err error
	switch entry.Type {
	case domain.EntryTypeDebit:
		err = l.account.Debit(entry.Amount)
	case domain.EntryTypeCredit:
		err = l.account.Credit(entry.Amount)
	}

	// 2. 更新 Idempotency
	if err == nil {
		l.sequence++
		entry.Sequence = l.sequence
		now := l.now()
		entry.CreatedAt = now.UnixNano()
		l.processedEntries.add(entry.Key(), now)
	}

	// 3. 回傳結果
	req.Result <- entryResult{Balance: l.account.Balance, Err: err}
}

var _ usecase.Ledger = (*LMAXLedger)(nil)
