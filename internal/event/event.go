package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	TransactionUpdate = "transactionUpdate"
	SettlementUpdate  = "settlementUpdate"
)

// settlementUpdate 的 type 字段
const (
	SettlementRequest = "settlement_request"
	SettlementPaid    = "settlement_paid"
)

// Publisher 提交后的通知通道，尽力投递。
// 实现不得阻塞超过 ctx 的期限；返回错误只用于记录，不影响已提交的账本。
type Publisher interface {
	Publish(ctx context.Context, channel, name string, payload any) error
}

// StoreChannel 商户会话订阅的频道
func StoreChannel(storeID int64) string {
	return fmt.Sprintf("store_%d", storeID)
}

// Envelope 所有传输层共用的消息体
type Envelope struct {
	Event      string          `json:"event"`
	Channel    string          `json:"channel"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEnvelope payload 已经是 json.RawMessage 时原样保留
func NewEnvelope(channel, name string, payload any) (*Envelope, error) {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", name, err)
		}
		raw = b
	}
	return &Envelope{
		Event:      name,
		Channel:    channel,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

func (e *Envelope) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// NopPublisher 未配置任何传输时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }

// Fanout 依次投递到每个 Publisher，汇总所有错误
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, channel, name string, payload any) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, channel, name, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
