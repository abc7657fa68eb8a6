package repository

import (
	"errors"

	"campuspay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrStudentNotFound     = errors.New("学生不存在")
	ErrStoreNotFound       = errors.New("商户不存在")
	ErrSettlementNotFound  = errors.New("结算单不存在")
	ErrTransactionNotFound = errors.New("交易不存在")
)

// pick 事务内用 tx，否则用基础连接
func pick(db, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return db
	}
	return tx
}

// scanMoney 读取单列金额聚合。SQLite 的 SUM 返回浮点数，这里统一取整到分。
func scanMoney(q *gorm.DB) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := q.Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return model.RoundMoney(total), nil
}
