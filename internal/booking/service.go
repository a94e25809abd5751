// Package booking exposes every backend operation of the booking site. Each
// gated method consults access.Authorize before touching the store.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vsrepair/booking-service/internal/access"
	"vsrepair/booking-service/internal/cache"
	"vsrepair/booking-service/internal/catalog"
	"vsrepair/booking-service/internal/intake"
	"vsrepair/booking-service/internal/metrics"
	"vsrepair/booking-service/internal/models"
	"vsrepair/booking-service/internal/store"

	"go.uber.org/zap"
)

const (
	cacheKeyList       = "service_requests:list"
	cacheKeyCount      = "service_requests:count"
	cacheKeyGeneration = "service_requests:gen"
)

type Service struct {
	store   store.Store
	catalog *catalog.Catalog
	cache   cache.Cache
	log     *zap.Logger
	now     func() time.Time
}

func NewService(st store.Store, cat *catalog.Catalog, c cache.Cache, log *zap.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   st,
		catalog: cat,
		cache:   c,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type CreateResult struct {
	RequestID           int64  `json:"request_id"`
	ConfirmationMessage string `json:"confirmation_message"`
}

type StatusResult struct {
	ID        int64  `json:"id"`
	NewStatus string `json:"new_status"`
}

type DeleteResult struct {
	Message          string `json:"message"`
	DeletedRequestID int64  `json:"deleted_request_id"`
}

type BulkDeleteResult struct {
	Message           string  `json:"message"`
	DeletedRequestIDs []int64 `json:"deleted_request_ids"`
}

func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Appliances() []models.Appliance {
	return s.catalog.Appliances()
}

func (s *Service) Brands() []models.Brand {
	return s.catalog.Brands()
}

func (s *Service) BrandsForAppliance(applianceID int64) ([]models.Brand, bool) {
	return s.catalog.BrandsForAppliance(applianceID)
}

func (s *Service) ProductsByIDs(ids []int64) []models.Product {
	return s.catalog.ProductsByIDs(ids)
}

func (s *Service) SearchProducts(filter catalog.SearchFilter) ([]models.Product, int) {
	return s.catalog.SearchProducts(filter)
}

// CreateServiceRequest is open to every caller. A non-empty requestKey makes
// resubmission return the original request.
func (s *Service) CreateServiceRequest(ctx context.Context, caller access.Caller, input models.ServiceRequestInput, requestKey string) (CreateResult, error) {
	if err := access.Authorize(caller, access.RoleGuest); err != nil {
		return CreateResult{}, err
	}
	input = intake.Normalize(input)
	if err := s.validate(input); err != nil {
		return CreateResult{}, err
	}

	request, created, err := s.store.CreateServiceRequest(ctx, store.CreateServiceRequestInput{
		RequestKey: strings.TrimSpace(requestKey),
		Input:      input,
		Status:     models.StatusPending,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("create service request: %w", err)
	}

	if created {
		metrics.ServiceRequestsCreated.WithLabelValues(request.ApplianceType).Inc()
		s.invalidate(ctx)
		s.log.Info("service request created",
			zap.Int64("request_id", request.ID),
			zap.String("appliance_type", request.ApplianceType),
			zap.String("city", request.City))
	} else {
		s.log.Info("service request replayed", zap.Int64("request_id", request.ID))
	}

	return CreateResult{
		RequestID:           request.ID,
		ConfirmationMessage: confirmationMessage(request.ID),
	}, nil
}

func (s *Service) GetServiceRequest(ctx context.Context, caller access.Caller, id int64) (models.ServiceRequest, error) {
	if err := access.Authorize(caller, access.RoleAdmin); err != nil {
		return models.ServiceRequest{}, err
	}
	return s.store.GetServiceRequest(ctx, id)
}

func (s *Service) ListServiceRequests(ctx context.Context, caller access.Caller) ([]models.ServiceRequest, error) {
	if err := access.Authorize(caller, access.RoleAdmin); err != nil {
		return nil, err
	}
	key, cacheable := s.cacheKey(ctx, cacheKeyList)
	var cached []models.ServiceRequest
	if cacheable && s.lookup(ctx, key, &cached) {
		return cached, nil
	}
	requests, err := s.store.ListServiceRequests(ctx)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.remember(ctx, key, requests)
	}
	return requests, nil
}

func (s *Service) CountServiceRequests(ctx context.Context, caller access.Caller) (int, error) {
	if err := access.Authorize(caller, access.RoleAdmin); err != nil {
		return 0, err
	}
	key, cacheable := s.cacheKey(ctx, cacheKeyCount)
	var cached int
	if cacheable && s.lookup(ctx, key, &cached) {
		return cached, nil
	}
	count, err := s.store.CountServiceRequests(ctx)
	if err != nil {
		return 0, err
	}
	if cacheable {
		s.remember(ctx, key, count)
	}
	return count, nil
}

// UpdateServiceRequest overwrites every editable field. Id, status and
// creation time are kept.
func (s *Service) UpdateServiceRequest(ctx context.Context, caller access.Caller, id int64, input models.ServiceRequestInput) (models.ServiceRequest, error) {
	if err := access.Authorize(caller, access.RoleAdmin); err != nil {
		return models.ServiceRequest{}, err
	}
	input = intake.Normalize(input)
	if err := s.validate(input); err != nil {
		return models.ServiceRequest{}, err
	}
	request, err := s.store.UpdateServiceRequest(ctx, id, input, s.now())
	if err != nil {
		return models.ServiceRequest{}, err
	}
	s.invalidate(ctx)
	s.log.Info("service request updated", zap.Int64("request_id", id), zap.String("by", caller.Identity))
	return request, nil
}

func (s *Service) UpdateServiceRequestStatus(ctx context.Context, caller access.Caller, id int64, status string) (StatusResult, error) {
	if err := access.Authorize(caller, access.RoleAdmin); err != nil {
		return StatusResult{}, err
	}
	status = strings.TrimSpace(status)
	if !store.ValidStatus(status) {
		return StatusResult{}, &intake.ValidationError{Fields: intake.FieldErrors{"status": "Unknown status"}}
	}
	request, err := s.store.UpdateServiceRequestStatus(ctx, id, status, s.now())
	if err != nil {
		if errors.Is(err, store.ErrInvalidStatus) {
			return StatusResult{}, &intake.ValidationError{Fields: intake.FieldErrors{"status": "Unknown status"}}
		}
		return StatusResult{}, err
	}
	metrics.StatusChanges.WithLabelValues(request.Status).Inc()
	s.invalidate(ctx)
	s.log.Info("service request status changed",
		zap.Int64("request_id", id),
		zap.String("status", request.Status),
		zap.String("by", caller.Identity))
	return StatusResult{ID: request.ID, NewStatus: request.Status}, nil
}

func (s *Service) DeleteServiceRequest(ctx context.Context, caller access.Caller, id int64) (DeleteResult, error) {
	if err := access.Authorize(caller, access.RoleAdmin); err != nil {
		return DeleteResult{}, err
	}
	if err := s.store.DeleteServiceRequest(ctx, id); err != nil {
		return DeleteResult{}, err
	}
	s.invalidate(ctx)
	s.log.Info("service request deleted", zap.Int64("request_id", id), zap.String("by", caller.Identity))
	return DeleteResult{
		Message:          fmt.Sprintf("Service request %d deleted", id),
		DeletedRequestID: id,
	}, nil
}

// DeleteAllServiceRequests succeeds with an empty list when nothing is stored.
func (s *Service) DeleteAllServiceRequests(ctx context.Context, caller access.Caller) (BulkDeleteResult, error) {
	if err := access.Authorize(caller, access.RoleAdmin); err != nil {
		return BulkDeleteResult{}, err
	}
	ids, err := s.store.DeleteAllServiceRequests(ctx)
	if err != nil {
		return BulkDeleteResult{}, err
	}
	if ids == nil {
		ids = []int64{}
	}
	s.invalidate(ctx)
	s.log.Info("service requests deleted", zap.Int("count", len(ids)), zap.String("by", caller.Identity))
	return BulkDeleteResult{
		Message:           fmt.Sprintf("Deleted %d service requests", len(ids)),
		DeletedRequestIDs: ids,
	}, nil
}

func (s *Service) validate(input models.ServiceRequestInput) error {
	err := intake.Check(input)
	var verr *intake.ValidationError
	if errors.As(err, &verr) {
		for field := range verr.Fields {
			metrics.ValidationFailures.WithLabelValues(field).Inc()
		}
	}
	return err
}

// cacheKey suffixes base with the current generation. It is read before the
// store so a result that raced a mutation lands under a stale generation.
func (s *Service) cacheKey(ctx context.Context, base string) (string, bool) {
	var gen int64
	err := s.cache.GetJSON(ctx, cacheKeyGeneration, &gen)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("cache generation read failed", zap.Error(err))
		return "", false
	}
	return fmt.Sprintf("%s:%d", base, gen), true
}

func (s *Service) lookup(ctx context.Context, key string, dst interface{}) bool {
	err := s.cache.GetJSON(ctx, key, dst)
	if err == nil {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return true
	}
	if errors.Is(err, cache.ErrMiss) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	return false
}

func (s *Service) remember(ctx context.Context, key string, value interface{}) {
	if err := s.cache.SetJSON(ctx, key, value); err != nil {
		s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if _, err := s.cache.Incr(ctx, cacheKeyGeneration); err != nil {
		s.log.Warn("cache invalidation failed", zap.Error(err))
	}
}

func confirmationMessage(id int64) string {
	return fmt.Sprintf("Thank you for your service request #%d. We will contact you shortly to confirm your appointment.", id)
}
