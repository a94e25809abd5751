// Package events publishes outbox events to Kafka for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"vsrepair/booking-service/internal/store"

	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(ctx context.Context, event store.OutboxEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher writes synchronously so the relay only advances its
// offset after the broker acknowledged the event.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: true,
	}}, nil
}

type envelope struct {
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	AggregateID int64           `json:"aggregate_id"`
	Seq         int64           `json:"seq"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (p *KafkaPublisher) Publish(ctx context.Context, event store.OutboxEvent) error {
	msg, err := toMessage(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// toMessage keys by service request id so every event of one request lands
// on the same partition in order.
func toMessage(event store.OutboxEvent) (kafka.Message, error) {
	value, err := json.Marshal(envelope{
		EventID:     event.EventID,
		Type:        event.Type,
		AggregateID: event.AggregateID,
		Seq:         event.Seq,
		Payload:     event.Payload,
		CreatedAt:   event.CreatedAt,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.AggregateID, 10)),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}, nil
}

// Nop discards events when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, store.OutboxEvent) error { return nil }

func (Nop) Close() error { return nil }
