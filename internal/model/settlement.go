package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 结算状态
// ============================================================================
//
// requested -> (部分付款) -> completed
//
// pending / approved 预留给人工审批环节，目前没有任何写路径会产生这两个状态，
// 但可用额度的聚合查询已经把它们计算在内。

const (
	SettlementStatusRequested = "requested"
	SettlementStatusPending   = "pending"
	SettlementStatusApproved  = "approved"
	SettlementStatusCompleted = "completed"
)

var ValidStatusTransitions = map[string][]string{
	SettlementStatusRequested: {SettlementStatusCompleted},
	SettlementStatusPending:   {SettlementStatusCompleted},
	SettlementStatusApproved:  {SettlementStatusCompleted},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Settlement 结算单
// 任何时刻 total_transaction_amount == settled_amount + pending_amount
type Settlement struct {
	ID                     int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	StoreID                int64           `gorm:"index:idx_settlements_store_status,priority:1;not null" json:"store_id"`
	TotalTransactionAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;check:total_transaction_amount > 0" json:"total_transaction_amount"`
	SettledAmount          decimal.Decimal `gorm:"type:decimal(12,2);not null;check:settled_amount >= 0" json:"settled_amount"`
	PendingAmount          decimal.Decimal `gorm:"type:decimal(12,2);not null;check:pending_amount >= 0" json:"pending_amount"`
	Status                 string          `gorm:"type:varchar(20);not null;index:idx_settlements_store_status,priority:2" json:"status"`
	ReferenceID            string          `gorm:"type:varchar(64);uniqueIndex:uk_settlements_reference;not null" json:"reference_id"`
	CreatedBy              int64           `gorm:"not null" json:"created_by"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Store *Store `gorm:"foreignKey:StoreID" json:"-"`
}

func (Settlement) TableName() string {
	return "settlements"
}

func (s *Settlement) IsCompleted() bool {
	return s.Status == SettlementStatusCompleted
}

const (
	SettlementActionRequest = "request"
	SettlementActionPayment = "payment"
)

// SettlementLog 结算操作审计，只写不读
type SettlementLog struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SettlementID int64           `gorm:"index;not null" json:"settlement_id"`
	Action       string          `gorm:"type:varchar(20);not null" json:"action"`
	Amount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	PerformedBy  int64           `gorm:"not null" json:"performed_by"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (SettlementLog) TableName() string {
	return "settlement_logs"
}

// SettlementAmounts 商户结算额度快照，每次都从流水实时聚合。
// total_settled 含 approved 以及未完成（requested/pending）结算单上已付的部分，
// total_requested 是 requested/pending 结算单的未付部分，部分付款不会释放可申请额度。
type SettlementAmounts struct {
	PendingAvailable decimal.Decimal `json:"pending_available"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TotalSettled     decimal.Decimal `json:"total_settled"`   // approved 全部已付 + 未完成单的已付部分
	TotalRequested   decimal.Decimal `json:"total_requested"` // requested/pending 单的未付部分
	CompletedAmount  decimal.Decimal `json:"completed_amount"`
}

// ComputePendingAvailable max(total - (completed + settled + requested), 0)
func (a *SettlementAmounts) ComputePendingAvailable() {
	claimed := a.CompletedAmount.Add(a.TotalSettled).Add(a.TotalRequested)
	avail := a.TotalAmount.Sub(claimed)
	if avail.IsNegative() {
		avail = decimal.Zero
	}
	a.PendingAvailable = RoundMoney(avail)
}
