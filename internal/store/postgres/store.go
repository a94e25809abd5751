package postgres

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"time"

	"vsrepair/booking-service/internal/models"
	"vsrepair/booking-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// outboxLockKey serializes outbox writers until commit so a relay reading
// seq > offset never skips a row committed late with a lower seq.
const outboxLockKey int64 = 0x6f7574626f78

const requestColumns = `id, status, name, email, phone, city, postal_code, appliance_type,
	brand, appliance_age, preferred_time, message, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return classify(s.pool.Ping(ctx))
}

func (s *Store) CreateServiceRequest(ctx context.Context, input store.CreateServiceRequestInput) (models.ServiceRequest, bool, error) {
	request, created, err := s.createServiceRequest(ctx, input)
	return request, created, classify(err)
}

func (s *Store) createServiceRequest(ctx context.Context, input store.CreateServiceRequestInput) (models.ServiceRequest, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ServiceRequest{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if input.RequestKey != "" {
		existing, found, err := findByRequestKey(ctx, tx, input.RequestKey)
		if err != nil {
			return models.ServiceRequest{}, false, err
		}
		if found {
			return existing, false, tx.Commit(ctx)
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
	in := input.Input

	row := tx.QueryRow(ctx, `
		INSERT INTO service_requests (
			request_key, status, name, email, phone, city, postal_code, appliance_type,
			brand, appliance_age, preferred_time, message, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		ON CONFLICT (request_key) DO NOTHING
		RETURNING `+requestColumns,
		nullIfEmpty(input.RequestKey), status, in.Name, in.Email, in.Phone, in.City, in.PostalCode,
		in.ApplianceType, in.Brand, in.ApplianceAge, in.PreferredTime, in.Message, createdAt)

	request, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// a concurrent submission with the same key won the insert
		_ = tx.Rollback(ctx)
		existing, found, err := findByRequestKey(ctx, s.pool, input.RequestKey)
		if err != nil {
			return models.ServiceRequest{}, false, err
		}
		if !found {
			return models.ServiceRequest{}, false, store.ErrServiceRequestNotFound
		}
		return existing, false, nil
	}
	if err != nil {
		return models.ServiceRequest{}, false, err
	}

	if err := insertOutboxEvent(ctx, tx, store.EventServiceRequestCreated, request.ID, request, createdAt); err != nil {
		return models.ServiceRequest{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.ServiceRequest{}, false, err
	}
	return request, true, nil
}

func (s *Store) GetServiceRequest(ctx context.Context, id int64) (models.ServiceRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ServiceRequest{}, store.ErrServiceRequestNotFound
		}
		return models.ServiceRequest{}, classify(err)
	}
	return request, nil
}

func (s *Store) ListServiceRequests(ctx context.Context) ([]models.ServiceRequest, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+requestColumns+` FROM service_requests ORDER BY id ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	requests := make([]models.ServiceRequest, 0)
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, classify(err)
		}
		requests = append(requests, request)
	}
	return requests, classify(rows.Err())
}

func (s *Store) CountServiceRequests(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM service_requests`).Scan(&count); err != nil {
		return 0, classify(err)
	}
	return count, nil
}

func (s *Store) UpdateServiceRequest(ctx context.Context, id int64, input models.ServiceRequestInput, updatedAt time.Time) (models.ServiceRequest, error) {
	request, err := s.updateServiceRequest(ctx, id, input, stamp(updatedAt))
	return request, classify(err)
}

func (s *Store) updateServiceRequest(ctx context.Context, id int64, in models.ServiceRequestInput, updatedAt time.Time) (models.ServiceRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ServiceRequest{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE service_requests
		SET name = $2, email = $3, phone = $4, city = $5, postal_code = $6, appliance_type = $7,
		    brand = $8, appliance_age = $9, preferred_time = $10, message = $11, updated_at = $12
		WHERE id = $1
		RETURNING `+requestColumns,
		id, in.Name, in.Email, in.Phone, in.City, in.PostalCode, in.ApplianceType,
		in.Brand, in.ApplianceAge, in.PreferredTime, in.Message, updatedAt)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ServiceRequest{}, store.ErrServiceRequestNotFound
		}
		return models.ServiceRequest{}, err
	}

	if err := insertOutboxEvent(ctx, tx, store.EventServiceRequestUpdated, id, request, updatedAt); err != nil {
		return models.ServiceRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.ServiceRequest{}, err
	}
	return request, nil
}

func (s *Store) UpdateServiceRequestStatus(ctx context.Context, id int64, status string, updatedAt time.Time) (models.ServiceRequest, error) {
	if !store.ValidStatus(status) {
		return models.ServiceRequest{}, store.ErrInvalidStatus
	}
	request, err := s.updateServiceRequestStatus(ctx, id, status, stamp(updatedAt))
	return request, classify(err)
}

func (s *Store) updateServiceRequestStatus(ctx context.Context, id int64, status string, updatedAt time.Time) (models.ServiceRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ServiceRequest{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanRequest(tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ServiceRequest{}, store.ErrServiceRequestNotFound
		}
		return models.ServiceRequest{}, err
	}
	if !store.ValidTransition(current.Status, status) {
		return models.ServiceRequest{}, store.ErrInvalidTransition
	}
	if current.Status == status {
		return current, tx.Commit(ctx)
	}

	request, err := scanRequest(tx.QueryRow(ctx, `
		UPDATE service_requests SET status = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+requestColumns, id, status, updatedAt))
	if err != nil {
		return models.ServiceRequest{}, err
	}

	payload := store.StatusChangedPayload{Request: request, PreviousStatus: current.Status}
	if err := insertOutboxEvent(ctx, tx, store.EventServiceRequestStatusChanged, id, payload, updatedAt); err != nil {
		return models.ServiceRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.ServiceRequest{}, err
	}
	return request, nil
}

func (s *Store) DeleteServiceRequest(ctx context.Context, id int64) error {
	return classify(s.deleteServiceRequest(ctx, id))
}

func (s *Store) deleteServiceRequest(ctx context.Context, id int64) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM service_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrServiceRequestNotFound
	}
	if err := insertOutboxEvent(ctx, tx, store.EventServiceRequestDeleted, id, store.DeletedPayload{ID: id}, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) DeleteAllServiceRequests(ctx context.Context) ([]int64, error) {
	ids, err := s.deleteAllServiceRequests(ctx)
	return ids, classify(err)
}

func (s *Store) deleteAllServiceRequests(ctx context.Context) ([]int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `DELETE FROM service_requests RETURNING id`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	now := time.Now().UTC()
	for _, id := range ids {
		if err := insertOutboxEvent(ctx, tx, store.EventServiceRequestDeleted, id, store.DeletedPayload{ID: id}, now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

func (s *Store) GetSession(ctx context.Context, token string) (models.Session, error) {
	var session models.Session
	row := s.pool.QueryRow(ctx, `
		SELECT identity, expires_at
		FROM sessions
		WHERE token_hash = $1 AND expires_at > NOW()
	`, hashToken(token))
	if err := row.Scan(&session.Identity, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, store.ErrSessionNotFound
		}
		return models.Session{}, classify(err)
	}
	return session, nil
}

func (s *Store) CreateSession(ctx context.Context, token, identity string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (token_hash, identity, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET identity = EXCLUDED.identity, expires_at = EXCLUDED.expires_at
	`, hashToken(token), identity, expiresAt)
	return classify(err)
}

func (s *Store) GetUserRole(ctx context.Context, identity string) (string, bool, error) {
	var role string
	if err := s.pool.QueryRow(ctx, `SELECT role FROM user_roles WHERE identity = $1`, identity).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, classify(err)
	}
	return role, true, nil
}

func (s *Store) SetUserRole(ctx context.Context, identity, role string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_roles (identity, role, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (identity) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
	`, identity, role)
	return classify(err)
}

func (s *Store) GetUserProfile(ctx context.Context, identity string) (models.UserProfile, bool, error) {
	var profile models.UserProfile
	row := s.pool.QueryRow(ctx, `SELECT name, email, phone FROM user_profiles WHERE identity = $1`, identity)
	if err := row.Scan(&profile.Name, &profile.Email, &profile.Phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.UserProfile{}, false, nil
		}
		return models.UserProfile{}, false, classify(err)
	}
	return profile, true, nil
}

func (s *Store) SaveUserProfile(ctx context.Context, identity string, profile models.UserProfile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_profiles (identity, name, email, phone, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (identity) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone, updated_at = NOW()
	`, identity, profile.Name, profile.Email, profile.Phone)
	return classify(err)
}

func (s *Store) ListOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT seq, event_id, type, aggregate_id, payload_json, created_at
		FROM outbox_events
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.Seq, &event.EventID, &event.Type, &event.AggregateID, &event.Payload, &event.CreatedAt); err != nil {
			return nil, classify(err)
		}
		events = append(events, event)
	}
	return events, classify(rows.Err())
}

func (s *Store) GetLastOffset(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	if err := s.pool.QueryRow(ctx, `SELECT last_seq FROM outbox_offsets WHERE consumer = $1`, consumer).Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, classify(err)
	}
	return seq, nil
}

func (s *Store) UpdateOffset(ctx context.Context, consumer string, seq int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox_offsets (consumer, last_seq, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (consumer) DO UPDATE SET last_seq = EXCLUDED.last_seq, updated_at = NOW()
	`, consumer, seq)
	return classify(err)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func findByRequestKey(ctx context.Context, q querier, key string) (models.ServiceRequest, bool, error) {
	request, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE request_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ServiceRequest{}, false, nil
		}
		return models.ServiceRequest{}, false, err
	}
	return request, true, nil
}

func scanRequest(row pgx.Row) (models.ServiceRequest, error) {
	var r models.ServiceRequest
	err := row.Scan(&r.ID, &r.Status, &r.Name, &r.Email, &r.Phone, &r.City, &r.PostalCode, &r.ApplianceType,
		&r.Brand, &r.ApplianceAge, &r.PreferredTime, &r.Message, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, aggregateID int64, payload interface{}, at time.Time) error {
	event, err := store.NewOutboxEvent(eventType, aggregateID, payload, at)
	if err != nil {
		return err
	}
	// Must be the last lock a transaction takes; callers only insert more
	// outbox rows and commit afterwards.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, outboxLockKey); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, aggregate_id, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.EventID, event.Type, event.AggregateID, []byte(event.Payload), event.CreatedAt)
	return err
}

// classify marks connection and timeout failures as store.ErrUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", sum)
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func stamp(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value
}
