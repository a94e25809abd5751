package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"vsrepair/booking-service/internal/store"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func sampleEvent() store.OutboxEvent {
	return store.OutboxEvent{
		Seq:         7,
		EventID:     "3f1c0a1e-8d0f-4a57-9c55-2b7a4f0f9d11",
		Type:        store.EventServiceRequestCreated,
		AggregateID: 42,
		Payload:     json.RawMessage(`{"id":42,"name":"Raj"}`),
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublishWritesKeyedEnvelope(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer}

	require.NoError(t, publisher.Publish(context.Background(), sampleEvent()))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, sampleEvent().CreatedAt, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, store.EventServiceRequestCreated, string(msg.Headers[0].Value))

	var got envelope
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, int64(7), got.Seq)
	assert.Equal(t, int64(42), got.AggregateID)
	assert.JSONEq(t, `{"id":42,"name":"Raj"}`, string(got.Payload))
}

func TestPublishSurfacesWriterError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	publisher := &KafkaPublisher{writer: writer}

	err := publisher.Publish(context.Background(), sampleEvent())
	assert.EqualError(t, err, "broker down")
	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestNewKafkaPublisherRequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "service-requests"})
	assert.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)

	publisher, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "service-requests"})
	require.NoError(t, err)
	require.NoError(t, publisher.Close())
}
