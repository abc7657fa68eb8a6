package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RechargeTypeCash     = "cash"
	RechargeTypeTransfer = "transfer"
	RechargeTypeOnline   = "online"
)

// Recharge 充值流水，只追加
type Recharge struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RechargeNo string          `gorm:"type:varchar(64);uniqueIndex:uk_recharges_no;not null" json:"recharge_no"`
	StudentID  int64           `gorm:"index;not null" json:"student_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null;check:amount > 0" json:"amount"`
	Type       string          `gorm:"type:varchar(20);not null" json:"type"`
	Notes      string          `gorm:"type:varchar(256)" json:"notes"`
	CreatedBy  int64           `gorm:"not null" json:"created_by"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index" json:"created_at"`

	Student *Student `gorm:"foreignKey:StudentID" json:"-"`
}

func (Recharge) TableName() string {
	return "recharges"
}
