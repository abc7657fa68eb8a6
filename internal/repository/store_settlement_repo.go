package repository

import (
	"context"
	"time"

	"campuspay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoreSettlementRepository 维护 store_settlements 镜像
type StoreSettlementRepository struct {
	db *gorm.DB
}

func NewStoreSettlementRepository(db *gorm.DB) *StoreSettlementRepository {
	return &StoreSettlementRepository{db: db}
}

func (r *StoreSettlementRepository) Create(ctx context.Context, tx *gorm.DB, row *model.StoreSettlement) error {
	return pick(r.db, tx).WithContext(ctx).Create(row).Error
}

func (r *StoreSettlementRepository) GetByStoreID(ctx context.Context, tx *gorm.DB, storeID int64) (*model.StoreSettlement, error) {
	var row model.StoreSettlement
	err := pick(r.db, tx).WithContext(ctx).Where("store_id = ?", storeID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// AddPending 镜像行不存在时静默跳过，返回是否更新到
func (r *StoreSettlementRepository) AddPending(ctx context.Context, tx *gorm.DB, storeID int64, amount decimal.Decimal) (bool, error) {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.StoreSettlement{}).
		Where("store_id = ?", storeID).
		Update("pending_amount", gorm.Expr("ROUND(pending_amount + ?, 2)", amount))
	return result.RowsAffected > 0, result.Error
}

// SubtractPending 结算完成后扣减，最低到 0
func (r *StoreSettlementRepository) SubtractPending(ctx context.Context, tx *gorm.DB, storeID int64, amount decimal.Decimal, settledAt time.Time) (bool, error) {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.StoreSettlement{}).
		Where("store_id = ?", storeID).
		Updates(map[string]interface{}{
			"pending_amount": gorm.Expr(
				"CASE WHEN pending_amount > ? THEN ROUND(pending_amount - ?, 2) ELSE 0 END", amount, amount),
			"last_settlement_date": settledAt,
		})
	return result.RowsAffected > 0, result.Error
}

// Upsert 用实时聚合结果覆盖镜像
func (r *StoreSettlementRepository) Upsert(ctx context.Context, tx *gorm.DB, storeID int64, pending decimal.Decimal) error {
	row := &model.StoreSettlement{StoreID: storeID, PendingAmount: pending}
	return pick(r.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"pending_amount", "updated_at"}),
		}).
		Create(row).Error
}
