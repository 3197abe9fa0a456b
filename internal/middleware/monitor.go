package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/service"
)

// RequestObserver receives every completed request. Implemented by
// service.RequestMonitor, which evaluates off the request path.
type RequestObserver interface {
	Observe(ctx context.Context, outcome service.RequestOutcome)
}

// MonitorRequests hands each finished request to obs exactly once. The
// handler has returned before obs sees it. A handler that panics before
// writing a status is observed as a 500 and the panic continues outward.
func (m *Middleware) MonitorRequests(obs RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			completed := false

			defer func() {
				status := wrapped.statusCode
				if !completed && !wrapped.wroteHeader {
					status = http.StatusInternalServerError
				}
				obs.Observe(r.Context(), service.RequestOutcome{
					Method:       r.Method,
					Path:         r.URL.Path,
					IPAddress:    GetClientIP(r),
					UserAgent:    r.UserAgent(),
					StatusCode:   status,
					ResponseTime: time.Since(start),
				})
			}()

			next.ServeHTTP(wrapped, r)
			completed = true
		})
	}
}
