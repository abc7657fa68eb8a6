package event

import (
	"context"
	"fmt"

	"campuspay/internal/metrics"
	"campuspay/internal/model"
	"campuspay/internal/repository"
)

// OutboxPublisher 投递失败时把事件存入 outbox_message，由 OutboxSender 重试。
// 存入成功即视为已接收，不再向上返回投递错误。
type OutboxPublisher struct {
	next Publisher
	repo *repository.OutboxRepository
}

func NewOutboxPublisher(next Publisher, repo *repository.OutboxRepository) *OutboxPublisher {
	return &OutboxPublisher{next: next, repo: repo}
}

func (p *OutboxPublisher) Publish(ctx context.Context, channel, name string, payload any) error {
	sendErr := p.next.Publish(ctx, channel, name, payload)
	if sendErr == nil {
		return nil
	}

	env, err := NewEnvelope(channel, name, payload)
	if err != nil {
		return err
	}

	msg := &model.OutboxMessage{
		Channel:   channel,
		Event:     name,
		Payload:   []byte(env.Payload),
		Status:    model.OutboxStatusPending,
		LastError: model.TruncateLastError(sendErr.Error()),
	}
	if err := p.repo.Create(ctx, nil, msg); err != nil {
		return fmt.Errorf("park %s in outbox: %w (delivery error: %v)", name, err, sendErr)
	}
	metrics.OutboxParked.Inc()
	return nil
}
