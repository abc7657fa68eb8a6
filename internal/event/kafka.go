package event

import (
	"context"
	"fmt"

	"campuspay/internal/metrics"

	"github.com/IBM/sarama"
)

// KafkaPublisher 每种事件一个 topic，频道作为消息 key，同一商户的事件保持分区内有序
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topics   map[string]string
}

func NewKafkaPublisher(producer sarama.SyncProducer, topics map[string]string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topics: topics}
}

func (p *KafkaPublisher) Publish(ctx context.Context, channel, name string, payload any) error {
	topic, ok := p.topics[name]
	if !ok {
		return fmt.Errorf("kafka: no topic configured for event %s", name)
	}

	env, err := NewEnvelope(channel, name, payload)
	if err != nil {
		return err
	}
	body, err := env.Bytes()
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(channel),
		Value: sarama.ByteEncoder(body),
	}
	// SyncProducer 不接受 ctx，超时后放弃等待 ack，发送本身由 sarama 的 Producer.Timeout 兜底
	done := make(chan error, 1)
	go func() {
		_, _, err := p.producer.SendMessage(msg)
		done <- err
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		metrics.EventDeliveries.WithLabelValues("kafka", "error").Inc()
		return fmt.Errorf("kafka: send %s to %s: %w", name, topic, err)
	}
	metrics.EventDeliveries.WithLabelValues("kafka", "ok").Inc()
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
