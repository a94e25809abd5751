package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"vsrepair/booking-service/internal/access"
	"vsrepair/booking-service/internal/store"

	"github.com/google/uuid"
)

// CallerResolver maps a session token to the caller it belongs to.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, token string) (access.Caller, error)
}

func AuthMiddleware(resolver CallerResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicEndpoint(r) {
				next.ServeHTTP(w, r)
				return
			}
			caller, err := resolver.ResolveCaller(r.Context(), sessionIDFromRequest(r))
			if err != nil {
				if errors.Is(err, store.ErrSessionNotFound) {
					writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
					return
				}
				status, code, message := mapError(err)
				writeError(w, requestIDFromRequest(r), status, code, message)
				return
			}
			next.ServeHTTP(w, r.WithContext(access.WithCaller(r.Context(), caller)))
		})
	}
}

// RequestIDMiddleware makes sure every request carries an X-Request-ID and
// echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDFromRequest(r)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func callerFromRequest(r *http.Request) access.Caller {
	return access.CallerFromContext(r.Context())
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
