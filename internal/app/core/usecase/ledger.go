package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
)

// Ledger 是內部帳本的介面
type Ledger interface {
	// Debit 扣款，餘額不足回傳 domain.ErrInsufficientBalance，成功回傳扣款後餘額
	Debit(ctx context.Context, txID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	// Credit 補回，只給補償流程使用
	Credit(ctx context.Context, txID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	// Peek 取得目前餘額
	Peek(ctx context.Context) (decimal.Decimal, error)
}

// Gateway 是外部 PSP 的介面
//
// LaunchUSSD 與 SubmitPayout 不回傳 error：網路錯誤、timeout 都要被轉成 OK=false 的回應，
// 讓出款流程一定能走到補償那一步。
type Gateway interface {
	FetchWalletInfo(ctx context.Context) (map[string]any, error)
	LaunchUSSD(ctx context.Context, code string, amount decimal.Decimal, phone, reference string) *domain.PSPResponse
	SubmitPayout(ctx context.Context, amount decimal.Decimal, phone, reference string) *domain.PSPResponse
}
