package store

import (
	"context"
	"encoding/json"
	"time"

	"vsrepair/booking-service/internal/models"
)

type CreateServiceRequestInput struct {
	// RequestKey is an optional client-supplied idempotency key.
	RequestKey string
	Input      models.ServiceRequestInput
	Status     string
	CreatedAt  time.Time
}

type ServiceRequestStore interface {
	// CreateServiceRequest returns the stored request and whether it was newly
	// created; a repeated RequestKey returns the original request.
	CreateServiceRequest(ctx context.Context, input CreateServiceRequestInput) (models.ServiceRequest, bool, error)
	GetServiceRequest(ctx context.Context, id int64) (models.ServiceRequest, error)
	ListServiceRequests(ctx context.Context) ([]models.ServiceRequest, error)
	CountServiceRequests(ctx context.Context) (int, error)
	UpdateServiceRequest(ctx context.Context, id int64, input models.ServiceRequestInput, updatedAt time.Time) (models.ServiceRequest, error)
	UpdateServiceRequestStatus(ctx context.Context, id int64, status string, updatedAt time.Time) (models.ServiceRequest, error)
	DeleteServiceRequest(ctx context.Context, id int64) error
	DeleteAllServiceRequests(ctx context.Context) ([]int64, error)
}

type AccessStore interface {
	GetSession(ctx context.Context, token string) (models.Session, error)
	CreateSession(ctx context.Context, token, identity string, expiresAt time.Time) error
	// GetUserRole reports false when the identity has never been assigned a role.
	GetUserRole(ctx context.Context, identity string) (string, bool, error)
	SetUserRole(ctx context.Context, identity, role string) error
	GetUserProfile(ctx context.Context, identity string) (models.UserProfile, bool, error)
	SaveUserProfile(ctx context.Context, identity string, profile models.UserProfile) error
}

type OutboxStore interface {
	ListOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]OutboxEvent, error)
	GetLastOffset(ctx context.Context, consumer string) (int64, error)
	UpdateOffset(ctx context.Context, consumer string, seq int64) error
}

type Store interface {
	ServiceRequestStore
	AccessStore
	OutboxStore
	Ping(ctx context.Context) error
}

type OutboxEvent struct {
	Seq         int64           `json:"seq"`
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	AggregateID int64           `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}
