package repository

import (
	"context"
	"errors"

	"campuspay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	return pick(r.db, tx).WithContext(ctx).Create(trans).Error
}

// GetByTransactionNo 按流水号查询，商户对账和小票补打使用
func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, tx *gorm.DB, transactionNo string) (*model.Transaction, error) {
	var trans model.Transaction
	err := pick(r.db, tx).WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// SumCompletedByStore 商户累计完成交易金额，结算计算的唯一依据
func (r *TransactionRepository) SumCompletedByStore(ctx context.Context, tx *gorm.DB, storeID int64) (decimal.Decimal, error) {
	return scanMoney(pick(r.db, tx).WithContext(ctx).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("store_id = ? AND status = ?", storeID, model.TransactionStatusCompleted))
}

func (r *TransactionRepository) SumCompletedByStudent(ctx context.Context, tx *gorm.DB, studentID int64) (decimal.Decimal, error) {
	return scanMoney(pick(r.db, tx).WithContext(ctx).
		Model(&model.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("student_id = ? AND status = ?", studentID, model.TransactionStatusCompleted))
}
