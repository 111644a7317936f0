package mq

import (
	"fmt"
	"log/slog"

	"fanpoints/internal/config"

	"github.com/IBM/sarama"
)

// Producer Kafka 同步生产者
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer 初始化 Kafka 生产者
func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1 // 幂等生产者要求
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	slog.Info("Kafka 生产者创建成功", "brokers", cfg.Brokers)
	return NewProducerFrom(producer), nil
}

// NewProducerFrom 包装已有的 SyncProducer（测试时传入 mocks）
func NewProducerFrom(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// Publish 发送消息，key 相同的消息进入同一分区
func (p *Producer) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close 关闭 Kafka 生产者
func (p *Producer) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
