package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout last_reset_date 的存储格式，按字典序比较即按日期比较
const DateLayout = "2006-01-02"

// Student 学生账户
// 余额只由充值增加、由消费减少；daily_spent 按运营时区的自然日惰性清零
type Student struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string          `gorm:"type:varchar(128);not null" json:"name"`
	Class         string          `gorm:"type:varchar(64)" json:"class"`
	GuardianName  string          `gorm:"type:varchar(128)" json:"guardian_name"`
	PhotoURL      string          `gorm:"type:varchar(512)" json:"photo_url"`
	Balance       decimal.Decimal `gorm:"type:decimal(12,2);not null;check:balance >= 0" json:"balance"`
	DailyLimit    decimal.Decimal `gorm:"type:decimal(12,2);not null;check:daily_limit >= 0" json:"daily_limit"` // 0 表示不限额
	DailySpent    decimal.Decimal `gorm:"type:decimal(12,2);not null;check:daily_spent >= 0" json:"daily_spent"`
	LastResetDate string          `gorm:"type:varchar(10);not null;index" json:"last_reset_date"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Student) TableName() string {
	return "students"
}

// HasDailyLimit 限额为 0 时不做日限额校验
func (s *Student) HasDailyLimit() bool {
	return s.DailyLimit.IsPositive()
}

// EffectiveDailySpent 惰性清零：上次清零日期早于今天时，当日已消费视为 0。
// 同一天内重复调用结果不变。
func EffectiveDailySpent(s *Student, today string) decimal.Decimal {
	if s.LastResetDate < today {
		return decimal.Zero
	}
	return s.DailySpent
}

// RemainingDailyAllowance 当日剩余额度，不限额时 ok 为 false
func RemainingDailyAllowance(s *Student, today string) (remaining decimal.Decimal, ok bool) {
	if !s.HasDailyLimit() {
		return decimal.Zero, false
	}
	remaining = s.DailyLimit.Sub(EffectiveDailySpent(s, today))
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return remaining, true
}

// DailyLimitChange 日限额变更记录
type DailyLimitChange struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID int64           `gorm:"index;not null" json:"student_id"`
	OldLimit  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"old_limit"`
	NewLimit  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"new_limit"`
	ChangedBy int64           `gorm:"not null" json:"changed_by"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (DailyLimitChange) TableName() string {
	return "daily_limit_history"
}
