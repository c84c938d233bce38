package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/logger"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageHandler processes one message. Errors are retried; a message that
// keeps failing is logged and skipped.
type MessageHandler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

const handleAttempts = 5

type Consumer struct {
	reader     messageReader
	logger     *logger.Logger
	retryDelay time.Duration
}

// NewConsumer creates a group consumer over all given topics.
func NewConsumer(brokers, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log, retryDelay: time.Second}
}

// Start consumes until ctx is cancelled. A message is committed once the
// handler succeeded or gave up.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("KAFKA", "Kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("KAFKA", "Kafka consumer stopped")
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			return err
		}

		if err := c.handle(ctx, handler, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Skipping message at %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit offset %d on %s: %v", msg.Offset, msg.Topic, err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= handleAttempts; attempt++ {
		if err = handler.Handle(ctx, msg); err == nil {
			return nil
		}
		c.logger.Warn("KAFKA", fmt.Sprintf("Handling %s@%d failed (attempt %d/%d): %v", msg.Topic, msg.Offset, attempt, handleAttempts, err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.retryDelay):
		}
	}
	return err
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
