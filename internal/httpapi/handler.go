package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"vsrepair/booking-service/internal/access"
	"vsrepair/booking-service/internal/booking"
	"vsrepair/booking-service/internal/catalog"
	"vsrepair/booking-service/internal/intake"
	"vsrepair/booking-service/internal/models"
	"vsrepair/booking-service/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handler struct {
	svc *booking.Service
	log *zap.Logger
}

type Options struct {
	Logger *zap.Logger
}

type createServiceRequestBody struct {
	RequestID string `json:"request_id"`
	models.ServiceRequestInput
}

type statusBody struct {
	Status string `json:"status"`
}

type roleBody struct {
	Role string `json:"role"`
}

type errorResponse struct {
	RequestID string             `json:"request_id"`
	Error     responseError      `json:"error"`
	Fields    intake.FieldErrors `json:"fields,omitempty"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(svc *booking.Service, options Options) *Handler {
	log := options.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(RequestIDMiddleware, LoggingMiddleware(h.log), AuthMiddleware(h.svc))

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/appliances", h.handleAppliances).Methods(http.MethodGet)
	api.HandleFunc("/appliances/{id:[0-9]+}/brands", h.handleApplianceBrands).Methods(http.MethodGet)
	api.HandleFunc("/brands", h.handleBrands).Methods(http.MethodGet)
	api.HandleFunc("/products", h.handleProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/search", h.handleSearchProducts).Methods(http.MethodGet)

	api.HandleFunc("/service-requests", h.handleCreateServiceRequest).Methods(http.MethodPost)
	api.HandleFunc("/service-requests", h.handleListServiceRequests).Methods(http.MethodGet)
	api.HandleFunc("/service-requests", h.handleDeleteAllServiceRequests).Methods(http.MethodDelete)
	api.HandleFunc("/service-requests/count", h.handleCountServiceRequests).Methods(http.MethodGet)
	api.HandleFunc("/service-requests/{id:[0-9]+}", h.handleGetServiceRequest).Methods(http.MethodGet)
	api.HandleFunc("/service-requests/{id:[0-9]+}", h.handleUpdateServiceRequest).Methods(http.MethodPut)
	api.HandleFunc("/service-requests/{id:[0-9]+}", h.handleDeleteServiceRequest).Methods(http.MethodDelete)
	api.HandleFunc("/service-requests/{id:[0-9]+}/status", h.handleUpdateStatus).Methods(http.MethodPatch)

	api.HandleFunc("/me/profile", h.handleGetCallerProfile).Methods(http.MethodGet)
	api.HandleFunc("/me/profile", h.handleSaveCallerProfile).Methods(http.MethodPut)
	api.HandleFunc("/me/role", h.handleCallerRole).Methods(http.MethodGet)
	api.HandleFunc("/me/admin", h.handleIsCallerAdmin).Methods(http.MethodGet)
	api.HandleFunc("/users/{identity}/profile", h.handleGetUserProfile).Methods(http.MethodGet)
	api.HandleFunc("/users/{identity}/role", h.handleAssignRole).Methods(http.MethodPut)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ready(r.Context()); err != nil {
		h.log.Warn("readiness check failed", zap.Error(err))
		writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "unavailable", "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleAppliances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Appliances())
}

func (h *Handler) handleBrands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Brands())
}

func (h *Handler) handleApplianceBrands(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	brands, found := h.svc.BrandsForAppliance(id)
	if !found {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "appliance_not_found", "appliance not found")
		return
	}
	writeJSON(w, http.StatusOK, brands)
}

func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDList(r.URL.Query()["ids"])
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "ids must be a comma separated list of integers")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ProductsByIDs(ids))
}

func (h *Handler) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter catalog.SearchFilter
	var err error
	if filter.ApplianceIDs, err = parseIDList(query["appliance_id"]); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "appliance_id must be integers")
		return
	}
	if filter.BrandIDs, err = parseIDList(query["brand_id"]); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "brand_id must be integers")
		return
	}
	if raw := strings.TrimSpace(query.Get("max_price")); raw != "" {
		maxPrice, err := strconv.ParseFloat(raw, 64)
		if err != nil || maxPrice < 0 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "max_price must be a non-negative number")
			return
		}
		filter.MaxPrice = &maxPrice
	}

	products, count := h.svc.SearchProducts(filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    count,
	})
}

func (h *Handler) handleCreateServiceRequest(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequestBody
	if !decodeRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID != "" && !isValidUUID(req.RequestID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "request_id must be a UUID when provided")
		return
	}

	result, err := h.svc.CreateServiceRequest(r.Context(), callerFromRequest(r), req.ServiceRequestInput, req.RequestID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListServiceRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.svc.ListServiceRequests(r.Context(), callerFromRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *Handler) handleCountServiceRequests(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.CountServiceRequests(r.Context(), callerFromRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) handleGetServiceRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	request, err := h.svc.GetServiceRequest(r.Context(), callerFromRequest(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *Handler) handleUpdateServiceRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var input models.ServiceRequestInput
	if !decodeRequest(w, r, &input) {
		return
	}
	request, err := h.svc.UpdateServiceRequest(r.Context(), callerFromRequest(r), id, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusBody
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.svc.UpdateServiceRequestStatus(r.Context(), callerFromRequest(r), id, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeleteServiceRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.DeleteServiceRequest(r.Context(), callerFromRequest(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeleteAllServiceRequests(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.DeleteAllServiceRequests(r.Context(), callerFromRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetCallerProfile(w http.ResponseWriter, r *http.Request) {
	profile, found, err := h.svc.GetCallerUserProfile(r.Context(), callerFromRequest(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleSaveCallerProfile(w http.ResponseWriter, r *http.Request) {
	var profile models.UserProfile
	if !decodeRequest(w, r, &profile) {
		return
	}
	if err := h.svc.SaveCallerUserProfile(r.Context(), callerFromRequest(r), profile); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCallerRole(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"role": string(h.svc.CallerRole(callerFromRequest(r)))})
}

func (h *Handler) handleIsCallerAdmin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"is_admin": h.svc.IsCallerAdmin(callerFromRequest(r))})
}

func (h *Handler) handleGetUserProfile(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	profile, found, err := h.svc.GetUserProfile(r.Context(), callerFromRequest(r), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req roleBody
	if !decodeRequest(w, r, &req) {
		return
	}
	identity := mux.Vars(r)["identity"]
	if err := h.svc.AssignUserRole(r.Context(), callerFromRequest(r), identity, req.Role); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"identity": identity, "role": strings.ToLower(strings.TrimSpace(req.Role))})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	requestID := requestIDFromRequest(r)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	resp := errorResponse{
		RequestID: requestID,
		Error:     responseError{Code: code, Message: message},
	}
	var verr *intake.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, status, resp)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrServiceRequestNotFound):
		return http.StatusNotFound, "service_request_not_found", "service request not found"
	case errors.Is(err, access.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied", "permission denied"
	case errors.Is(err, intake.ErrValidationFailed):
		return http.StatusBadRequest, "validation_failed", "one or more fields are invalid"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "status change is not allowed"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable, please try again"
	default:
		return http.StatusInternalServerError, "internal_error", "Failed to submit request. Please try again."
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// parseIDList accepts repeated parameters and comma separated values.
func parseIDList(values []string) ([]int64, error) {
	var ids []int64
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
