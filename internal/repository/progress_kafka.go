package repository

import (
	"context"

	"StockCast/internal/domain/models"
	"StockCast/internal/domain/repository"
	pkgkafka "StockCast/pkg/kafka"
)

// KafkaProgressPublisher forwards progress events to a Kafka topic, keyed by
// model fingerprint so consumers see each model's events in order.
type KafkaProgressPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaProgressPublisher creates a publisher on an existing producer.
func NewKafkaProgressPublisher(producer *pkgkafka.Producer, topic string) repository.ProgressPublisher {
	return &KafkaProgressPublisher{producer: producer, topic: topic}
}

func (p *KafkaProgressPublisher) Publish(ctx context.Context, event *models.ProgressEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(event.ModelID), event)
}

func (p *KafkaProgressPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
