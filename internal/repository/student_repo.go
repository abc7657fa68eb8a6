package repository

import (
	"context"
	"errors"

	"campuspay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StudentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) Create(ctx context.Context, tx *gorm.DB, student *model.Student) error {
	return pick(r.db, tx).WithContext(ctx).Create(student).Error
}

func (r *StudentRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Student, error) {
	var student model.Student
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&student).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return &student, nil
}

// GetByIDForUpdate 在事务内锁定学生行，同一学生的扣款/充值由此串行
func (r *StudentRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Student, error) {
	var student model.Student
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&student).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return &student, nil
}

// ApplySpending 写入扣款后的绝对值。调用方必须已持有行锁。
func (r *StudentRepository) ApplySpending(ctx context.Context, tx *gorm.DB, id int64, balance, dailySpent decimal.Decimal, today string) error {
	result := tx.WithContext(ctx).
		Model(&model.Student{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"balance":         balance,
			"daily_spent":     dailySpent,
			"last_reset_date": today,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStudentNotFound
	}
	return nil
}

// SetBalance 写入充值后的余额。调用方必须已持有行锁。
func (r *StudentRepository) SetBalance(ctx context.Context, tx *gorm.DB, id int64, balance decimal.Decimal) error {
	result := tx.WithContext(ctx).
		Model(&model.Student{}).
		Where("id = ?", id).
		Update("balance", balance)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStudentNotFound
	}
	return nil
}

// SetDailyLimit 调用方负责确认学生存在；限额未变化时 MySQL 的影响行数为 0
func (r *StudentRepository) SetDailyLimit(ctx context.Context, tx *gorm.DB, id int64, limit decimal.Decimal) error {
	return pick(r.db, tx).WithContext(ctx).
		Model(&model.Student{}).
		Where("id = ?", id).
		Update("daily_limit", limit).Error
}

func (r *StudentRepository) CreateLimitChange(ctx context.Context, tx *gorm.DB, change *model.DailyLimitChange) error {
	return pick(r.db, tx).WithContext(ctx).Create(change).Error
}

// ResetDailySpent 批量清零 daily_spent。
// force 为 false 时只处理 last_reset_date 早于 today 的行，当天已经消费过的学生不受影响。
func (r *StudentRepository) ResetDailySpent(ctx context.Context, today string, force bool) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Student{})
	if force {
		q = q.Where("1 = 1")
	} else {
		q = q.Where("last_reset_date < ?", today)
	}
	result := q.Updates(map[string]interface{}{
		"daily_spent":     decimal.Zero,
		"last_reset_date": today,
	})
	return result.RowsAffected, result.Error
}

// ListIDsAfter 按主键游标分页扫描
func (r *StudentRepository) ListIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
