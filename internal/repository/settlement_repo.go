package repository

import (
	"context"
	"errors"

	"campuspay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(ctx context.Context, tx *gorm.DB, settlement *model.Settlement) error {
	return pick(r.db, tx).WithContext(ctx).Create(settlement).Error
}

func (r *SettlementRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Settlement, error) {
	var settlement model.Settlement
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&settlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return &settlement, nil
}

// GetByIDForUpdate 锁定结算单，同一结算单的付款由此串行
func (r *SettlementRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Settlement, error) {
	var settlement model.Settlement
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&settlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return &settlement, nil
}

// UpdatePayment 写入付款后的金额和状态，三个字段一起写保证 total = settled + pending
func (r *SettlementRepository) UpdatePayment(ctx context.Context, tx *gorm.DB, s *model.Settlement) error {
	result := tx.WithContext(ctx).
		Model(&model.Settlement{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"settled_amount": s.SettledAmount,
			"pending_amount": s.PendingAmount,
			"status":         s.Status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSettlementNotFound
	}
	return nil
}

func (r *SettlementRepository) CreateLog(ctx context.Context, tx *gorm.DB, entry *model.SettlementLog) error {
	return pick(r.db, tx).WithContext(ctx).Create(entry).Error
}

// SettlementTotals 结算单按状态聚合
//
//	completed: 已完成结算单的 total_transaction_amount
//	settled:   未完成结算单（approved / requested / pending）已付的 settled_amount
//	requested: 申请中结算单（requested / pending）尚未支付的 pending_amount
//
// 部分付款的申请单，已付和未付两部分分别计入 settled 和 requested，合计等于其 total，
// 不会因为付款而重新释放可结算额度。
func (r *SettlementRepository) SettlementTotals(ctx context.Context, tx *gorm.DB, storeID int64) (completed, settled, requested decimal.Decimal, err error) {
	row := pick(r.db, tx).WithContext(ctx).
		Model(&model.Settlement{}).
		Select(
			"COALESCE(SUM(CASE WHEN status = ? THEN total_transaction_amount ELSE 0 END), 0), "+
				"COALESCE(SUM(CASE WHEN status IN (?, ?, ?) THEN settled_amount ELSE 0 END), 0), "+
				"COALESCE(SUM(CASE WHEN status IN (?, ?) THEN pending_amount ELSE 0 END), 0)",
			model.SettlementStatusCompleted,
			model.SettlementStatusApproved, model.SettlementStatusRequested, model.SettlementStatusPending,
			model.SettlementStatusRequested, model.SettlementStatusPending,
		).
		Where("store_id = ?", storeID).
		Row()

	if err = row.Scan(&completed, &settled, &requested); err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	return model.RoundMoney(completed), model.RoundMoney(settled), model.RoundMoney(requested), nil
}
