package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypePurchase = "purchase"

	// TransactionStatusCompleted 消费交易唯一的终态，交易创建即完成
	TransactionStatusCompleted = "completed"
)

// Transaction 消费流水
//
// 只追加，不修改，不删除。
// 商户所有 completed 交易金额之和是结算计算的唯一依据。
type Transaction struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo    string          `gorm:"type:varchar(64);uniqueIndex:uk_transactions_no;not null" json:"transaction_no"`
	StudentID        int64           `gorm:"index;not null" json:"student_id"`
	StoreID          int64           `gorm:"index:idx_transactions_store_status,priority:1;not null" json:"store_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null;check:amount > 0" json:"amount"`
	Type             string          `gorm:"type:varchar(20);not null" json:"type"`
	Status           string          `gorm:"type:varchar(20);not null;index:idx_transactions_store_status,priority:2" json:"status"`
	DailyLimitAtTime decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"daily_limit_at_time"` // 交易时的日限额快照
	DailySpentBefore decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"daily_spent_before"`  // 交易前的当日已消费（已惰性清零）
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`

	Student *Student `gorm:"foreignKey:StudentID" json:"-"`
	Store   *Store   `gorm:"foreignKey:StoreID" json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}
