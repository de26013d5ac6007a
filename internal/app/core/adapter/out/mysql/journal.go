package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-mem-payout/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-payout/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-payout/pkg/mysql"
)

// sqlWithdrawal 對應資料庫的 withdrawals 表
type sqlWithdrawal struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	RefID        []byte          `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.TransactionID
	Channel      string          `gorm:"size:16"`
	Phone        string          `gorm:"size:32"`
	Amount       decimal.Decimal `gorm:"type:decimal(38,4)"`
	State        string          `gorm:"size:16;index"`
	Reference    string          `gorm:"size:64"`
	PSPStatus    int             `gorm:"column:psp_status"`
	Ambiguous    bool
	BalanceAfter decimal.Decimal `gorm:"type:decimal(38,4)"`
	CreatedAt    int64           `gorm:"autoCreateTime:milli"`
}

func (*sqlWithdrawal) TableName() string {
	return "withdrawals"
}

// MySQLJournal 出款紀錄存在 MySQL (只追加，不回放進帳本)
type MySQLJournal struct {
	client *mysql.Client
}

func NewMySQLJournal(client *mysql.Client) *MySQLJournal {
	return &MySQLJournal{
		client: client,
	}
}

// Migrate 建立或更新 withdrawals 表
func (j *MySQLJournal) Migrate(ctx context.Context) error {
	return j.client.DB().WithContext(ctx).AutoMigrate(&sqlWithdrawal{})
}

// Record 寫入一筆出款紀錄
func (j *MySQLJournal) Record(ctx context.Context, rec *domain.WithdrawalRecord) error {
	row := sqlWithdrawal{
		RefID:        rec.TransactionID[:],
		Channel:      string(rec.Channel),
		Phone:        rec.Phone,
		Amount:       rec.Amount,
		State:        string(rec.State),
		Reference:    rec.Reference,
		PSPStatus:    rec.PSPStatus,
		Ambiguous:    rec.Ambiguous,
		BalanceAfter: rec.BalanceAfter,
		CreatedAt:    rec.CreatedAt.UnixMilli(),
	}
	if err := j.client.DB().WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert withdrawal: %w", err)
	}
	return nil
}

// Recent 由新到舊回傳最多 limit 筆
func (j *MySQLJournal) Recent(ctx context.Context, limit int) ([]domain.WithdrawalRecord, error) {
	if limit <= 0 {
		return []domain.WithdrawalRecord{}, nil
	}
	var rows []sqlWithdrawal
	err := j.client.DB().WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}

	out := make([]domain.WithdrawalRecord, 0, len(rows))
	for _, row := range rows {
		txID, err := uuid.FromBytes(row.RefID)
		if err != nil {
			return nil, fmt.Errorf("withdrawal %d: bad ref_id: %w", row.ID, err)
		}
		out = append(out, domain.WithdrawalRecord{
			TransactionID: txID,
			Channel:       domain.Channel(row.Channel),
			Phone:         row.Phone,
			Amount:        row.Amount,
			State:         domain.WithdrawalState(row.State),
			Reference:     row.Reference,
			PSPStatus:     row.PSPStatus,
			Ambiguous:     row.Ambiguous,
			BalanceAfter:  row.BalanceAfter,
			CreatedAt:     time.UnixMilli(row.CreatedAt).UTC(),
		})
	}
	return out, nil
}

var _ usecase.Journal = (*MySQLJournal)(nil)
