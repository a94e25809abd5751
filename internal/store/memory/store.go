// Package memory keeps every store in process memory. It backs local
// development when no database is configured and most package tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"vsrepair/booking-service/internal/models"
	"vsrepair/booking-service/internal/store"
)

type Store struct {
	mu sync.RWMutex

	nextID      int64
	requests    map[int64]models.ServiceRequest
	requestKeys map[string]int64

	sessions map[string]models.Session
	roles    map[string]string
	profiles map[string]models.UserProfile

	outbox  []store.OutboxEvent
	lastSeq int64
	offsets map[string]int64
}

func New() *Store {
	return &Store{
		requests:    make(map[int64]models.ServiceRequest),
		requestKeys: make(map[string]int64),
		sessions:    make(map[string]models.Session),
		roles:       make(map[string]string),
		profiles:    make(map[string]models.UserProfile),
		offsets:     make(map[string]int64),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateServiceRequest(ctx context.Context, input store.CreateServiceRequestInput) (models.ServiceRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input.RequestKey != "" {
		if id, ok := s.requestKeys[input.RequestKey]; ok {
			if existing, ok := s.requests[id]; ok {
				return existing, false, nil
			}
		}
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := input.Status
	if status == "" {
		status = models.StatusPending
	}

	s.nextID++
	request := models.ServiceRequest{
		ID:        s.nextID,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	request.Apply(input.Input)

	if err := s.appendEvent(store.EventServiceRequestCreated, request.ID, request, createdAt); err != nil {
		s.nextID--
		return models.ServiceRequest{}, false, err
	}
	s.requests[request.ID] = request
	if input.RequestKey != "" {
		s.requestKeys[input.RequestKey] = request.ID
	}
	return request, true, nil
}

func (s *Store) GetServiceRequest(ctx context.Context, id int64) (models.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[id]
	if !ok {
		return models.ServiceRequest{}, store.ErrServiceRequestNotFound
	}
	return request, nil
}

func (s *Store) ListServiceRequests(ctx context.Context) ([]models.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	requests := make([]models.ServiceRequest, 0, len(s.requests))
	for _, request := range s.requests {
		requests = append(requests, request)
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].ID < requests[j].ID })
	return requests, nil
}

func (s *Store) CountServiceRequests(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests), nil
}

func (s *Store) UpdateServiceRequest(ctx context.Context, id int64, input models.ServiceRequestInput, updatedAt time.Time) (models.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return models.ServiceRequest{}, store.ErrServiceRequestNotFound
	}
	request.Apply(input)
	request.UpdatedAt = stamp(updatedAt)
	if err := s.appendEvent(store.EventServiceRequestUpdated, id, request, request.UpdatedAt); err != nil {
		return models.ServiceRequest{}, err
	}
	s.requests[id] = request
	return request, nil
}

func (s *Store) UpdateServiceRequestStatus(ctx context.Context, id int64, status string, updatedAt time.Time) (models.ServiceRequest, error) {
	if !store.ValidStatus(status) {
		return models.ServiceRequest{}, store.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return models.ServiceRequest{}, store.ErrServiceRequestNotFound
	}
	if !store.ValidTransition(request.Status, status) {
		return models.ServiceRequest{}, store.ErrInvalidTransition
	}
	if request.Status == status {
		return request, nil
	}
	previous := request.Status
	request.Status = status
	request.UpdatedAt = stamp(updatedAt)
	payload := store.StatusChangedPayload{Request: request, PreviousStatus: previous}
	if err := s.appendEvent(store.EventServiceRequestStatusChanged, id, payload, request.UpdatedAt); err != nil {
		return models.ServiceRequest{}, err
	}
	s.requests[id] = request
	return request, nil
}

func (s *Store) DeleteServiceRequest(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[id]; !ok {
		return store.ErrServiceRequestNotFound
	}
	if err := s.appendEvent(store.EventServiceRequestDeleted, id, store.DeletedPayload{ID: id}, time.Now().UTC()); err != nil {
		return err
	}
	s.removeLocked(id)
	return nil
}

func (s *Store) DeleteAllServiceRequests(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.requests))
	for id := range s.requests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	now := time.Now().UTC()
	for _, id := range ids {
		if err := s.appendEvent(store.EventServiceRequestDeleted, id, store.DeletedPayload{ID: id}, now); err != nil {
			return nil, err
		}
		s.removeLocked(id)
	}
	return ids, nil
}

func (s *Store) removeLocked(id int64) {
	delete(s.requests, id)
	for key, value := range s.requestKeys {
		if value == id {
			delete(s.requestKeys, key)
		}
	}
}

func (s *Store) GetSession(ctx context.Context, token string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return models.Session{}, store.ErrSessionNotFound
	}
	if !session.ExpiresAt.IsZero() && time.Now().After(session.ExpiresAt) {
		return models.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) CreateSession(ctx context.Context, token, identity string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = models.Session{Identity: identity, ExpiresAt: expiresAt}
	return nil
}

func (s *Store) GetUserRole(ctx context.Context, identity string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[identity]
	return role, ok, nil
}

func (s *Store) SetUserRole(ctx context.Context, identity, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[identity] = role
	return nil
}

func (s *Store) GetUserProfile(ctx context.Context, identity string) (models.UserProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[identity]
	return profile, ok, nil
}

func (s *Store) SaveUserProfile(ctx context.Context, identity string, profile models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[identity] = profile
	return nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []store.OutboxEvent
	for _, event := range s.outbox {
		if event.Seq <= afterSeq {
			continue
		}
		events = append(events, event)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}

func (s *Store) GetLastOffset(ctx context.Context, consumer string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offsets[consumer], nil
}

func (s *Store) UpdateOffset(ctx context.Context, consumer string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[consumer] = seq
	s.trimOutbox()
	return nil
}

// trimOutbox drops events every consumer has moved past. Must be called
// with mu held.
func (s *Store) trimOutbox() {
	low := int64(-1)
	for _, offset := range s.offsets {
		if low < 0 || offset < low {
			low = offset
		}
	}
	n := 0
	for n < len(s.outbox) && s.outbox[n].Seq <= low {
		n++
	}
	if n == 0 {
		return
	}
	s.outbox = append([]store.OutboxEvent(nil), s.outbox[n:]...)
}

// appendEvent must be called with mu held.
func (s *Store) appendEvent(eventType string, aggregateID int64, payload interface{}, at time.Time) error {
	event, err := store.NewOutboxEvent(eventType, aggregateID, payload, at)
	if err != nil {
		return err
	}
	s.lastSeq++
	event.Seq = s.lastSeq
	s.outbox = append(s.outbox, event)
	return nil
}

func stamp(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value
}
