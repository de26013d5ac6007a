package usecase

import (
	"context"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
)

// Journal 出款稽核紀錄，只追加不回放
type Journal interface {
	Record(ctx context.Context, rec *domain.WithdrawalRecord) error
	// Recent 由新到舊回傳最多 limit 筆
	Recent(ctx context.Context, limit int) ([]domain.WithdrawalRecord, error)
}
