package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vsrepair/booking-service/internal/booking"
	"vsrepair/booking-service/internal/catalog"
	"vsrepair/booking-service/internal/models"
	"vsrepair/booking-service/internal/store"
	"vsrepair/booking-service/internal/store/memory"

	"go.uber.org/zap"
)

const adminToken = "admin-token"
const userToken = "user-token"

func newTestHandler(t *testing.T) (*Handler, *memory.Store) {
	t.Helper()
	st := memory.New()
	return newTestHandlerWithStore(t, st), st
}

func newTestHandlerWithStore(t *testing.T, st store.Store) *Handler {
	t.Helper()
	cat, err := catalog.FromSeed()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)
	if err := st.CreateSession(ctx, adminToken, "owner", expires); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := st.SetUserRole(ctx, "owner", "admin"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := st.CreateSession(ctx, userToken, "alice", expires); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := st.SetUserRole(ctx, "alice", "user"); err != nil {
		t.Fatalf("set role: %v", err)
	}
	log := zap.NewNop()
	svc := booking.NewService(st, cat, nil, log)
	return NewHandler(svc, Options{Logger: log})
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func validBooking() map[string]string {
	return map[string]string{
		"name":           "Raj",
		"phone":          "98765 43210",
		"city":           "Tirupati",
		"appliance_type": "AC",
		"preferred_time": "Anytime",
	}
}

func TestCatalogRoutes(t *testing.T) {
	h, _ := newTestHandler(t)
	routes := h.Routes()

	rec := doRequest(t, routes, http.MethodGet, "/api/appliances", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("appliances status %d", rec.Code)
	}
	var appliances []models.Appliance
	decodeBody(t, rec, &appliances)
	if len(appliances) != 4 || appliances[0].Name != "AC" {
		t.Fatalf("unexpected appliances: %+v", appliances)
	}

	rec = doRequest(t, routes, http.MethodGet, "/api/appliances/1/brands", "", nil)
	var brands []models.Brand
	decodeBody(t, rec, &brands)
	if rec.Code != http.StatusOK || len(brands) != 4 {
		t.Fatalf("expected 4 AC brands, got %d %+v", rec.Code, brands)
	}

	rec = doRequest(t, routes, http.MethodGet, "/api/appliances/99/brands", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown appliance, got %d", rec.Code)
	}

	rec = doRequest(t, routes, http.MethodGet, "/api/products?ids=3,99,1,3", "", nil)
	var products []models.Product
	decodeBody(t, rec, &products)
	if len(products) != 2 || products[0].ID != 3 || products[1].ID != 1 {
		t.Fatalf("unexpected products: %+v", products)
	}

	rec = doRequest(t, routes, http.MethodGet, "/api/products?ids=abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad ids, got %d", rec.Code)
	}
}

func TestSearchProducts(t *testing.T) {
	h, _ := newTestHandler(t)
	routes := h.Routes()

	rec := doRequest(t, routes, http.MethodGet, "/api/products/search?appliance_id=1&max_price=500", "", nil)
	var resp struct {
		Products []models.Product `json:"products"`
		Count    int              `json:"count"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 2 || len(resp.Products) != 2 {
		t.Fatalf("expected 2 products, got %+v", resp)
	}
	for _, product := range resp.Products {
		if product.ApplianceID != 1 || product.Price > 500 {
			t.Fatalf("product outside filter: %+v", product)
		}
	}

	rec = doRequest(t, routes, http.MethodGet, "/api/products/search", "", nil)
	decodeBody(t, rec, &resp)
	if resp.Count != 12 {
		t.Fatalf("expected unfiltered search to return all products, got %d", resp.Count)
	}

	rec = doRequest(t, routes, http.MethodGet, "/api/products/search?max_price=-1", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative max_price, got %d", rec.Code)
	}
}

func TestCreateServiceRequestPublic(t *testing.T) {
	h, st := newTestHandler(t)
	routes := h.Routes()

	rec := doRequest(t, routes, http.MethodPost, "/api/service-requests", "", validBooking())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result booking.CreateResult
	decodeBody(t, rec, &result)
	if result.RequestID != 1 {
		t.Fatalf("expected request id 1, got %d", result.RequestID)
	}
	if result.ConfirmationMessage == "" {
		t.Fatalf("expected confirmation message")
	}

	stored, err := st.GetServiceRequest(context.Background(), result.RequestID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.Phone != "9876543210" || stored.Status != models.StatusPending {
		t.Fatalf("unexpected stored request: %+v", stored)
	}
}

func TestCreateServiceRequestIdempotent(t *testing.T) {
	h, _ := newTestHandler(t)
	routes := h.Routes()

	body := map[string]string{"request_id": "6a1f3c2e-9d4b-4c1a-8f2e-3b5d7c9e1a20"}
	for key, value := range validBooking() {
		body[key] = value
	}
	first := doRequest(t, routes, http.MethodPost, "/api/service-requests", "", body)
	second := doRequest(t, routes, http.MethodPost, "/api/service-requests", "", body)
	var a, b booking.CreateResult
	decodeBody(t, first, &a)
	decodeBody(t, second, &b)
	if a.RequestID != b.RequestID {
		t.Fatalf("expected same request id, got %d and %d", a.RequestID, b.RequestID)
	}

	body["request_id"] = "not-a-uuid"
	rec := doRequest(t, routes, http.MethodPost, "/api/service-requests", "", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed request_id, got %d", rec.Code)
	}
}

func TestCreateServiceRequestValidation(t *testing.T) {
	h, _ := newTestHandler(t)
	routes := h.Routes()

	body := validBooking()
	body["phone"] = "98765"
	body["appliance_type"] = "Toaster"
	rec := doRequest(t, routes, http.MethodPost, "/api/service-requests", "", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Error.Code != "validation_failed" {
		t.Fatalf("unexpected code %q", resp.Error.Code)
	}
	if resp.Fields["phone"] != "Please enter a valid 10-digit phone number" {
		t.Fatalf("unexpected phone message: %+v", resp.Fields)
	}
	if resp.Fields["appliance_type"] != "Please select an appliance type" {
		t.Fatalf("unexpected appliance_type message: %+v", resp.Fields)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected generated request id in error body")
	}
}

func TestCreateRejectsUnknownFields(t *testing.T) {
	h, _ := newTestHandler(t)
	body := validBooking()
	body["status"] = "completed"
	rec := doRequest(t, h.Routes(), http.MethodPost, "/api/service-requests", "", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	h, _ := newTestHandler(t)
	routes := h.Routes()

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{name: "guest", token: "", status: http.StatusForbidden},
		{name: "user", token: userToken, status: http.StatusForbidden},
		{name: "unknown token", token: "bogus", status: http.StatusUnauthorized},
		{name: "admin", token: adminToken, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, routes, http.MethodGet, "/api/service-requests", tc.token, nil)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAdminLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)
	routes := h.Routes()

	for i := 0; i < 2; i++ {
		rec := doRequest(t, routes, http.MethodPost, "/api/service-requests", "", validBooking())
		if rec.Code != http.StatusCreated {
			t.Fatalf("create failed: %d", rec.Code)
		}
	}

	rec := doRequest(t, routes, http.MethodGet, "/api/service-requests/count", adminToken, nil)
	var count map[string]int
	decodeBody(t, rec, &count)
	if count["count"] != 2 {
		t.Fatalf("expected count 2, got %+v", count)
	}

	update := validBooking()
	update["city"] = "Chennai"
	rec = doRequest(t, routes, http.MethodPut, "/api/service-requests/1", adminToken, update)
	var updated models.ServiceRequest
	decodeBody(t, rec, &updated)
	if rec.Code != http.StatusOK || updated.City != "Chennai" || updated.ID != 1 {
		t.Fatalf("unexpected update result %d %+v", rec.Code, updated)
	}

	rec = doRequest(t, routes, http.MethodPatch, "/api/service-requests/1/status", adminToken, map[string]string{"status": "in_progress"})
	var status booking.StatusResult
	decodeBody(t, rec, &status)
	if rec.Code != http.StatusOK || status.NewStatus != models.StatusInProgress {
		t.Fatalf("unexpected status result %d %+v", rec.Code, status)
	}

	rec = doRequest(t, routes, http.MethodPatch, "/api/service-requests/1/status", adminToken, map[string]string{"status": "completed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected completion, got %d", rec.Code)
	}
	rec = doRequest(t, routes, http.MethodPatch, "/api/service-requests/1/status", adminToken, map[string]string{"status": "pending"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 leaving completed, got %d", rec.Code)
	}
	rec = doRequest(t, routes, http.MethodPatch, "/api/service-requests/2/status", adminToken, map[string]string{"status": "archived"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}

	rec = doRequest(t, routes, http.MethodDelete, "/api/service-requests/1", adminToken, nil)
	var deleted booking.DeleteResult
	decodeBody(t, rec, &deleted)
	if rec.Code != http.StatusOK || deleted.DeletedRequestID != 1 {
		t.Fatalf("unexpected delete result %d %+v", rec.Code, deleted)
	}
	rec = doRequest(t, routes, http.MethodGet, "/api/service-requests/1", adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}

	rec = doRequest(t, routes, http.MethodDelete, "/api/service-requests", adminToken, nil)
	var bulk booking.BulkDeleteResult
	decodeBody(t, rec, &bulk)
	if len(bulk.DeletedRequestIDs) != 1 || bulk.DeletedRequestIDs[0] != 2 {
		t.Fatalf("unexpected bulk delete %+v", bulk)
	}
	rec = doRequest(t, routes, http.MethodDelete, "/api/service-requests", adminToken, nil)
	decodeBody(t, rec, &bulk)
	if rec.Code != http.StatusOK || len(bulk.DeletedRequestIDs) != 0 {
		t.Fatalf("expected empty bulk delete, got %d %+v", rec.Code, bulk)
	}
}

func TestCallerRoutes(t *testing.T) {
	h, _ := newTestHandler(t)
	routes := h.Routes()

	rec := doRequest(t, routes, http.MethodGet, "/api/me/role", "", nil)
	var role map[string]string
	decodeBody(t, rec, &role)
	if role["role"] != "guest" {
		t.Fatalf("expected guest, got %+v", role)
	}

	rec = doRequest(t, routes, http.MethodGet, "/api/me/admin", adminToken, nil)
	var admin map[string]bool
	decodeBody(t, rec, &admin)
	if !admin["is_admin"] {
		t.Fatalf("expected admin")
	}

	rec = doRequest(t, routes, http.MethodGet, "/api/me/profile", userToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 before profile saved, got %d", rec.Code)
	}
	profile := models.UserProfile{Name: "Alice", Email: "alice@example.com", Phone: "9876543210"}
	rec = doRequest(t, routes, http.MethodPut, "/api/me/profile", userToken, profile)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on save, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, routes, http.MethodGet, "/api/users/alice/profile", adminToken, nil)
	var got models.UserProfile
	decodeBody(t, rec, &got)
	if got != profile {
		t.Fatalf("unexpected profile %+v", got)
	}

	rec = doRequest(t, routes, http.MethodPut, "/api/me/profile", "", profile)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for guest profile save, got %d", rec.Code)
	}

	rec = doRequest(t, routes, http.MethodPut, "/api/users/bob/role", userToken, map[string]string{"role": "admin"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin role assignment, got %d", rec.Code)
	}
	rec = doRequest(t, routes, http.MethodPut, "/api/users/bob/role", adminToken, map[string]string{"role": "superuser"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", rec.Code)
	}
	rec = doRequest(t, routes, http.MethodPut, "/api/users/bob/role", adminToken, map[string]string{"role": "User"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for role assignment, got %d", rec.Code)
	}
}

type unavailableStore struct {
	*memory.Store
}

func (unavailableStore) ListServiceRequests(context.Context) ([]models.ServiceRequest, error) {
	return nil, store.ErrUnavailable
}

func (unavailableStore) Ping(context.Context) error {
	return store.ErrUnavailable
}

func TestUnavailableStore(t *testing.T) {
	h := newTestHandlerWithStore(t, unavailableStore{Store: memory.New()})
	routes := h.Routes()

	rec := doRequest(t, routes, http.MethodGet, "/api/service-requests", adminToken, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	rec = doRequest(t, routes, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from readyz, got %d", rec.Code)
	}
	rec = doRequest(t, routes, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rec.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/brands", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(t, h.Routes(), http.MethodGet, "/api/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
