package store

import (
	"encoding/json"
	"time"

	"vsrepair/booking-service/internal/models"

	"github.com/google/uuid"
)

const (
	EventServiceRequestCreated       = "service_request.created"
	EventServiceRequestUpdated       = "service_request.updated"
	EventServiceRequestStatusChanged = "service_request.status_changed"
	EventServiceRequestDeleted       = "service_request.deleted"
)

type StatusChangedPayload struct {
	Request        models.ServiceRequest `json:"request"`
	PreviousStatus string                `json:"previous_status"`
}

type DeletedPayload struct {
	ID int64 `json:"id"`
}

// NewOutboxEvent builds an event ready to be written next to the mutation
// that produced it. Seq is assigned by the store.
func NewOutboxEvent(eventType string, aggregateID int64, payload interface{}, createdAt time.Time) (OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, err
	}
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return OutboxEvent{
		EventID:     uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Payload:     raw,
		CreatedAt:   createdAt,
	}, nil
}
