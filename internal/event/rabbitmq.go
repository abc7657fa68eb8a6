package event

import (
	"context"
	"fmt"

	"campuspay/internal/metrics"
)

// RabbitSender 由 mq.RabbitProducer 实现
type RabbitSender interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// RabbitPublisher routing key 为 <channel>.<event>，消费方可以按商户或按事件绑定
type RabbitPublisher struct {
	sender RabbitSender
}

func NewRabbitPublisher(sender RabbitSender) *RabbitPublisher {
	return &RabbitPublisher{sender: sender}
}

func RoutingKey(channel, name string) string {
	return channel + "." + name
}

func (p *RabbitPublisher) Publish(ctx context.Context, channel, name string, payload any) error {
	env, err := NewEnvelope(channel, name, payload)
	if err != nil {
		return err
	}
	body, err := env.Bytes()
	if err != nil {
		return err
	}

	if err := p.sender.Publish(ctx, RoutingKey(channel, name), body); err != nil {
		metrics.EventDeliveries.WithLabelValues("rabbitmq", "error").Inc()
		return fmt.Errorf("rabbitmq: publish %s: %w", name, err)
	}
	metrics.EventDeliveries.WithLabelValues("rabbitmq", "ok").Inc()
	return nil
}
