package repository

import (
	"context"

	"campuspay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RechargeRepository struct {
	db *gorm.DB
}

func NewRechargeRepository(db *gorm.DB) *RechargeRepository {
	return &RechargeRepository{db: db}
}

func (r *RechargeRepository) Create(ctx context.Context, tx *gorm.DB, recharge *model.Recharge) error {
	return pick(r.db, tx).WithContext(ctx).Create(recharge).Error
}

func (r *RechargeRepository) SumByStudent(ctx context.Context, tx *gorm.DB, studentID int64) (decimal.Decimal, error) {
	return scanMoney(pick(r.db, tx).WithContext(ctx).
		Model(&model.Recharge{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("student_id = ?", studentID))
}
