package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	tickets "ms-checkin/internal/tickets/service"
)

// TicketEventHandler is the part of the ticket service driven by inbound topics.
type TicketEventHandler interface {
	HandlePaymentConfirmed(ctx context.Context, evt models.PaymentConfirmedEvent) error
	SyncEvent(ctx context.Context, evt models.EventUpsertedEvent) error
	SyncTeam(ctx context.Context, evt models.TeamUpsertedEvent) error
}

// Dispatcher routes consumed messages to the ticket service by topic.
type Dispatcher struct {
	service TicketEventHandler
	topics  config.TopicConfig
	logger  *logger.Logger
}

func NewDispatcher(service TicketEventHandler, topics config.TopicConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{service: service, topics: topics, logger: log}
}

// Handle decodes and applies one message. Malformed payloads are logged and
// dropped; they would fail the same way on every redelivery.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	d.logger.LogKafka("RECEIVE", msg.Topic, fmt.Sprintf("offset %d", msg.Offset))

	switch msg.Topic {
	case d.topics.PaymentConfirmed:
		var evt models.PaymentConfirmedEvent
		if !d.decode(msg, &evt) {
			return nil
		}
		return d.service.HandlePaymentConfirmed(ctx, evt)

	case d.topics.EventUpserted:
		var evt models.EventUpsertedEvent
		if !d.decode(msg, &evt) {
			return nil
		}
		return d.dropInvalid(msg, d.service.SyncEvent(ctx, evt))

	case d.topics.TeamUpserted:
		var evt models.TeamUpsertedEvent
		if !d.decode(msg, &evt) {
			return nil
		}
		return d.dropInvalid(msg, d.service.SyncTeam(ctx, evt))
	}

	d.logger.Warn("KAFKA", fmt.Sprintf("No handler for topic %s", msg.Topic))
	return nil
}

func (d *Dispatcher) decode(msg kafka.Message, into interface{}) bool {
	if err := json.Unmarshal(msg.Value, into); err != nil {
		d.logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal %s message at offset %d: %v", msg.Topic, msg.Offset, err))
		return false
	}
	return true
}

// dropInvalid keeps retrying store failures but drops catalog records the
// service rejects as invalid.
func (d *Dispatcher) dropInvalid(msg kafka.Message, err error) error {
	if err != nil && isInvalid(err) {
		d.logger.Warn("KAFKA", fmt.Sprintf("Dropping invalid %s message at offset %d: %v", msg.Topic, msg.Offset, err))
		return nil
	}
	return err
}

func isInvalid(err error) bool {
	return errors.Is(err, tickets.ErrInvalidRequest)
}
