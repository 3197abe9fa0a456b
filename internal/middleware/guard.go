package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/riskianand4/internet-stock-tracker-84/internal/service"
)

// AccessChecker decides whether a client may reach the application.
// Implemented by service.AccessGuard.
type AccessChecker interface {
	Check(ctx context.Context, req service.AccessRequest) service.GuardDecision
}

// AccessGuard rejects requests from blocked addresses before any other
// application middleware runs
func (m *Middleware) AccessGuard(guard AccessChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := guard.Check(r.Context(), service.AccessRequest{
				IPAddress: GetClientIP(r),
				Path:      r.URL.Path,
				Method:    r.Method,
				UserAgent: r.UserAgent(),
			})
			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(decision.Status)
			json.NewEncoder(w).Encode(map[string]string{"error": decision.Message})
		})
	}
}
