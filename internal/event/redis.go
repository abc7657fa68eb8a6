package event

import (
	"context"
	"fmt"

	"campuspay/internal/metrics"

	"github.com/go-redis/redis/v8"
)

// RedisPublisher 通过 PUBLISH 推送给在线的商户会话
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel, name string, payload any) error {
	env, err := NewEnvelope(channel, name, payload)
	if err != nil {
		return err
	}
	body, err := env.Bytes()
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.prefix+channel, body).Err(); err != nil {
		metrics.EventDeliveries.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("redis: publish %s to %s: %w", name, channel, err)
	}
	metrics.EventDeliveries.WithLabelValues("redis", "ok").Inc()
	return nil
}
