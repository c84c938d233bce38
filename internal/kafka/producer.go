package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes committed ticket changes. Messages are keyed by ticket ID
// so every change of one ticket lands on the same partition in order.
type Producer struct {
	writer messageWriter
	topics config.TopicConfig
	logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, topics: topics, logger: log}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}

	if p.logger != nil {
		p.logger.LogKafka("PUBLISH", topic, key)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
}

// PublishTicketPurchased streams the purchase of a ticket to Kafka
func (p *Producer) PublishTicketPurchased(ctx context.Context, event models.TicketPurchasedEvent) error {
	return p.Publish(ctx, p.topics.TicketPurchased, event.TicketID, event)
}

// PublishQRIssued streams credential metadata to Kafka. The secret is never part of it.
func (p *Producer) PublishQRIssued(ctx context.Context, event models.QRIssuedEvent) error {
	return p.Publish(ctx, p.topics.QRIssued, event.TicketID, event)
}

// PublishTicketCheckedIn streams a completed check-in to Kafka
func (p *Producer) PublishTicketCheckedIn(ctx context.Context, event models.TicketCheckedInEvent) error {
	return p.Publish(ctx, p.topics.TicketCheckedIn, event.TicketID, event)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
