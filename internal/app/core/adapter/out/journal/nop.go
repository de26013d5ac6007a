package journal

import (
	"context"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/usecase"
)

// Nop journal.driver=none 時使用
type Nop struct{}

func (Nop) Record(ctx context.Context, rec *domain.WithdrawalRecord) error {
	return nil
}

func (Nop) Recent(ctx context.Context, limit int) ([]domain.WithdrawalRecord, error) {
	return []domain.WithdrawalRecord{}, nil
}

var _ usecase.Journal = Nop{}
