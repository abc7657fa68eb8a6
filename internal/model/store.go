package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Store 商户
// Balance 为累计入账金额，只随完成的消费交易增加
type Store struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string          `gorm:"type:varchar(128);not null;uniqueIndex:uk_stores_name" json:"name"`
	Type         string          `gorm:"type:varchar(64)" json:"type"`
	OwnerName    string          `gorm:"type:varchar(128)" json:"owner_name"`
	MobileNumber string          `gorm:"type:varchar(32);not null;uniqueIndex:uk_stores_mobile" json:"mobile_number"`
	Email        string          `gorm:"type:varchar(128);not null;uniqueIndex:uk_stores_email" json:"email"`
	Balance      decimal.Decimal `gorm:"type:decimal(12,2);not null;check:balance >= 0" json:"balance"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Store) TableName() string {
	return "stores"
}

// StoreSettlement 商户待结算金额的缓存镜像
// 结算可用额度永远以 transactions / settlements 聚合为准，这里只用于展示，允许滞后
type StoreSettlement struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreID            int64           `gorm:"uniqueIndex:uk_store_settlements_store;not null" json:"store_id"`
	PendingAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"pending_amount"`
	LastSettlementDate *time.Time      `json:"last_settlement_date,omitempty"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StoreSettlement) TableName() string {
	return "store_settlements"
}
