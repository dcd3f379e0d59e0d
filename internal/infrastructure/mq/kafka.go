package mq

import (
	"fmt"

	"commissionledger/internal/config"

	"github.com/IBM/sarama"
)

// NewSyncProducer builds a producer that waits for all in-sync replicas.
func NewSyncProducer(cfg *config.KafkaConfig) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = sarama.V2_1_0_0
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Idempotent = true
	kafkaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// NewConsumerGroup builds a consumer group that only commits offsets the handler has
// marked.
func NewConsumerGroup(cfg *config.KafkaConfig) (sarama.ConsumerGroup, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = sarama.V2_1_0_0
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Offsets.AutoCommit.Enable = true
	kafkaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return group, nil
}

// SendMessage publishes key/value to topic.
func SendMessage(producer sarama.SyncProducer, topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}
	_, _, err := producer.SendMessage(msg)
	return err
}
