package service

import (
	"context"

	"campuspay/internal/model"
	"campuspay/internal/repository"
)

// OutboxService 管理端查看和重放投递失败的事件
type OutboxService struct {
	*base
	outboxRepo *repository.OutboxRepository
}

func NewOutboxService(b *base) *OutboxService {
	return &OutboxService{base: b, outboxRepo: repository.NewOutboxRepository(b.db)}
}

func (s *OutboxService) Failed(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	messages, err := s.outboxRepo.GetFailedMessages(ctx, limit)
	if err != nil {
		return nil, classify("list failed outbox messages", err)
	}
	return messages, nil
}

// Requeue 把 FAILED 消息放回待投递队列，重试次数清零
func (s *OutboxService) Requeue(ctx context.Context, id int64) error {
	ok, err := s.outboxRepo.Requeue(ctx, id)
	if err != nil {
		return classify("requeue outbox message", err)
	}
	if !ok {
		return &Error{Kind: KindNotFound, Message: "Failed outbox message not found"}
	}
	s.logger.Info("事件已重新入队", "id", id)
	return nil
}
