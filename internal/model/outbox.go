package model

import (
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxLastErrorMax last_error 列的字节上限
const OutboxLastErrorMax = 512

// TruncateLastError 按字节截断到 OutboxLastErrorMax，不切断多字节字符
func TruncateLastError(s string) string {
	if len(s) <= OutboxLastErrorMax {
		return s
	}
	n := OutboxLastErrorMax
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// OutboxMessage 投递失败的事件暂存在这里，由 OutboxSender 重试
type OutboxMessage struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Channel    string         `gorm:"type:varchar(64);not null" json:"channel"`
	Event      string         `gorm:"type:varchar(64);not null" json:"event"`
	Payload    datatypes.JSON `gorm:"not null" json:"payload"`
	Status     string         `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int            `gorm:"not null;default:0" json:"retry_count"`
	LastError  string         `gorm:"type:varchar(512)" json:"last_error"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
