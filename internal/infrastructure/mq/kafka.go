package mq

import (
	"fmt"
	"log/slog"
	"time"

	"campuspay/internal/config"

	"github.com/IBM/sarama"
)

// NewKafkaProducer 初始化 Kafka 同步生产者
func NewKafkaProducer(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // SyncProducer 必须打开

	// 等待 broker ack 的上限，发布方的 ctx 超时后不再等待
	kafkaConfig.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	slog.Info("Kafka 生产者创建成功", "brokers", cfg.Brokers)
	return producer, nil
}
