package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/lesson-booking/internal/core/domain"
)

const (
	EventTypeOrderPlaced = "OrderPlaced"

	batchTimeout = 10 * time.Millisecond
	writeTimeout = 5 * time.Second
)

// OrderPlacedEvent is the JSON value written to the orders topic.
type OrderPlacedEvent struct {
	Type       string       `json:"type"`
	Order      domain.Order `json:"order"`
	OccurredAt time.Time    `json:"occurredAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           batchTimeout,
			WriteTimeout:           writeTimeout,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func newKafkaPublisherWithWriter(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// PublishOrderPlaced keys the message by order id so every event for an order lands on one partition.
func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	payload, err := json.Marshal(OrderPlacedEvent{
		Type:       EventTypeOrderPlaced,
		Order:      order,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(order.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventTypeOrderPlaced)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write order event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderPlaced(context.Context, domain.Order) error { return nil }

func (NoopPublisher) Close() error { return nil }
