package job

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"campuspay/internal/config"
	"campuspay/internal/event"
	"campuspay/internal/model"
	"campuspay/internal/repository"

	"gorm.io/gorm"
)

// OutboxSender 重投 outbox_message 中暂存的事件。
// publisher 必须是实际的传输层，不能再套 OutboxPublisher，否则失败的消息会被重复暂存。
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  event.Publisher
	logger     *slog.Logger
	stopCh     chan struct{}
	stopOnce   sync.Once
	interval   time.Duration
	batchSize  int
	maxRetry   int
}

func NewOutboxSender(db *gorm.DB, publisher event.Publisher, cfg *config.Config, logger *slog.Logger) *OutboxSender {
	interval := time.Duration(cfg.Business.OutboxIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	maxRetry := cfg.Business.MaxRetryCount
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		logger:     logger.With("job", "outbox_sender"),
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  100,
		maxRetry:   maxRetry,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息重投任务启动", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.logger.Info("任务停止")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ProcessPending 处理一批待投递消息，返回成功投递的条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", "error", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Channel, msg.Event, json.RawMessage(msg.Payload))
	if err == nil {
		if updateErr := s.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			s.logger.Error("更新消息状态失败", "id", msg.ID, "error", updateErr)
		} else {
			s.logger.Info("消息重投成功", "id", msg.ID, "channel", msg.Channel, "event", msg.Event)
		}
		return true
	}

	failed := msg.RetryCount+1 >= s.maxRetry
	if recErr := s.outboxRepo.RecordFailure(ctx, msg.ID, err.Error(), failed); recErr != nil {
		s.logger.Error("记录重投失败出错", "id", msg.ID, "error", recErr)
		return false
	}
	if failed {
		s.logger.Warn("消息超过最大重试次数，标记为失败", "id", msg.ID, "retry", msg.RetryCount+1, "error", err)
	} else {
		s.logger.Warn("消息重投失败", "id", msg.ID, "retry", msg.RetryCount+1, "error", err)
	}
	return false
}
