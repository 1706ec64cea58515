package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deliverydesk/auth"
	"deliverydesk/metrics"
)

// requireAuth verifies the bearer token and stores the caller's identity
// in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	}
}

// requireRole is requireAuth plus an allow-list of roles.
func (s *Server) requireRole(next http.HandlerFunc, roles ...auth.Role) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
		for _, allowed := range roles {
			if role == allowed {
				next(w, r)
				return
			}
		}
		respondError(w, http.StatusForbidden, "insufficient role")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestMetrics records the latency histogram for every request,
// labeled by the matched route pattern rather than the raw path so the
// cardinality stays bounded.
func (s *Server) withRequestMetrics(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		mux.ServeHTTP(rec, r)

		_, path := mux.Handler(r)
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
