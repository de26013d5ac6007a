package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-payout/pkg/wal"
)

// WALJournal 把出款紀錄追加到 WAL 檔案
type WALJournal struct {
	wal *wal.WAL
}

func NewWALJournal(w *wal.WAL) *WALJournal {
	return &WALJournal{wal: w}
}

// Record 寫入一筆出款紀錄
func (j *WALJournal) Record(ctx context.Context, rec *domain.WithdrawalRecord) error {
	if err := j.wal.Write(rec); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrWALWriteFailed, err)
	}
	return nil
}

// Recent 讀整個檔案，保留最後 limit 筆，由新到舊回傳
func (j *WALJournal) Recent(ctx context.Context, limit int) ([]domain.WithdrawalRecord, error) {
	if limit <= 0 {
		return []domain.WithdrawalRecord{}, nil
	}

	ring := make([]domain.WithdrawalRecord, 0, limit)
	err := j.wal.ReadAll(func(jsonRaw []byte) error {
		var rec domain.WithdrawalRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		if len(ring) == limit {
			ring = ring[1:]
		}
		ring = append(ring, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	out := make([]domain.WithdrawalRecord, 0, len(ring))
	for i := len(ring) - 1; i >= 0; i-- {
		out = append(out, ring[i])
	}
	return out, nil
}

var _ usecase.Journal = (*WALJournal)(nil)
