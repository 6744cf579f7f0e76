package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"kiddoquest/internal/logger"
	"kiddoquest/internal/metrics"
	"kiddoquest/internal/models"
	"kiddoquest/internal/security"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const IdentityContextKey ContextKey = "identity"

// Middleware holds dependencies for middleware functions
type Middleware struct {
	verifier *security.TokenVerifier
	limiter  *security.RateLimiter
	log      *logger.Logger
	metrics  *metrics.Collector
}

// NewMiddleware creates a new middleware instance. limiter may be nil.
func NewMiddleware(verifier *security.TokenVerifier, limiter *security.RateLimiter, log *logger.Logger, m *metrics.Collector) *Middleware {
	if log == nil {
		log = logger.Nop()
	}
	return &Middleware{verifier: verifier, limiter: limiter, log: log, metrics: m}
}

// RequireAuth verifies the bearer token, rate limits the caller and stores
// the identity in the request context
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := security.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			respondWithCode(w, http.StatusUnauthorized, CodeUnauthenticated, ErrUnauthorized)
			return
		}
		identity, err := m.verifier.Verify(token)
		if err != nil {
			m.log.Debug("Rejected token", "ip", security.GetClientIP(r), "error", err)
			respondWithCode(w, http.StatusUnauthorized, CodeUnauthenticated, ErrUnauthorized)
			return
		}

		if m.limiter != nil && !m.limiter.Allow(identity.FamilyID+":"+identity.UserID) {
			w.Header().Set("Retry-After", "1")
			respondWithCode(w, http.StatusTooManyRequests, CodeRateLimited, ErrTooManyRequests)
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
		next(w, r.WithContext(ctx))
	}
}

// RequireSystem only admits trusted trigger callers
func (m *Middleware) RequireSystem(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := GetIdentityFromContext(r.Context())
		if !identity.IsSystem() {
			respondWithCode(w, http.StatusForbidden, CodePermissionDenied, "system role required")
			return
		}
		next(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging logs HTTP requests and records their latency
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if v := recover(); v != nil {
				m.log.Error("Handler panic", "method", r.Method, "path", r.URL.Path, "panic", fmt.Sprint(v))
				respondWithCode(rec, http.StatusInternalServerError, CodeInternal, ErrInternalServerError)
			}
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.metrics.RecordRequest(route, rec.status, time.Since(start))
			m.log.Info("Request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		}()

		next.ServeHTTP(rec, r)
	})
}

// GetIdentityFromContext retrieves the caller identity from the request context
func GetIdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(models.Identity)
	return identity, ok
}
