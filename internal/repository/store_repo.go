package repository

import (
	"context"
	"errors"

	"campuspay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StoreRepository struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) *StoreRepository {
	return &StoreRepository{db: db}
}

func (r *StoreRepository) Create(ctx context.Context, tx *gorm.DB, store *model.Store) error {
	return pick(r.db, tx).WithContext(ctx).Create(store).Error
}

func (r *StoreRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Store, error) {
	var store model.Store
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&store).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}
	return &store, nil
}

// GetByIDForUpdate 锁定商户行，同一商户的结算申请由此串行
func (r *StoreRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Store, error) {
	var store model.Store
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&store).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStoreNotFound
		}
		return nil, err
	}
	return &store, nil
}

// Credit 商户累计入账 += amount
func (r *StoreRepository) Credit(ctx context.Context, tx *gorm.DB, id int64, amount decimal.Decimal) error {
	result := tx.WithContext(ctx).
		Model(&model.Store{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("ROUND(balance + ?, 2)", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (r *StoreRepository) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.Store{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}
