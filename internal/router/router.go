package router

import (
	"net/http"

	"github.com/riskianand4/internet-stock-tracker-84/internal/auth"
	"github.com/riskianand4/internet-stock-tracker-84/internal/config"
	"github.com/riskianand4/internet-stock-tracker-84/internal/handler"
	"github.com/riskianand4/internet-stock-tracker-84/internal/metrics"
	"github.com/riskianand4/internet-stock-tracker-84/internal/middleware"
)

// Monitoring groups the request-path monitoring components
type Monitoring struct {
	Guard    middleware.AccessChecker
	Observer middleware.RequestObserver
	Metrics  *metrics.Metrics
}

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, cfg *config.Config, tokenSvc *auth.TokenService, mon Monitoring) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, mon.Metrics.Handler())
	}

	// Login (rate limited per address on top of the global limit)
	loginRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "login",
		Limit:  cfg.Security.RateLimiting.LoginLimit,
		Window: cfg.Security.RateLimiting.LoginWindow,
		KeyFn:  middleware.IPKey,
	})
	mux.Handle("POST /api/auth/login", loginRateLimit(http.HandlerFunc(h.Login)))

	// Security review routes (admin only)
	authMw := mw.Auth(tokenSvc)
	adminMw := mw.RequireRole(cfg.Security.AdminRoles...)
	admin := func(f http.HandlerFunc) http.Handler {
		return authMw(adminMw(f))
	}

	mux.Handle("GET /api/security/events", admin(h.ListSecurityEvents))
	mux.Handle("GET /api/security/login-attempts", admin(h.ListLoginAttempts))
	mux.Handle("GET /api/security/stats", admin(h.GetSecurityStats))
	mux.Handle("PATCH /api/security/events/{id}/resolve", admin(h.ResolveSecurityEvent))
	mux.Handle("POST /api/security/ip-block", admin(h.SetIPBlockState))
	mux.Handle("POST /api/security/sweep", admin(h.RunSweep))
	mux.Handle("GET /api/security/audit", admin(h.ListAuditTrail))

	// Apply middleware stack
	var handler http.Handler = mux

	// Global rate limit, inside the monitor so its 429s are observed
	handler = mw.RateLimit(middleware.RateLimitConfig{
		Name:   "global",
		Limit:  cfg.Security.RateLimiting.GlobalLimit,
		Window: cfg.Security.RateLimiting.GlobalWindow,
		KeyFn:  middleware.IPKey,
		Skip:   middleware.SkipPaths("/health"),
	})(handler)

	// Request logging
	handler = mw.Logger(handler)

	// Security monitoring of every completed request
	handler = mw.MonitorRequests(mon.Observer)(handler)

	// Blocked addresses stop here
	handler = mw.AccessGuard(mon.Guard)(handler)

	// Client address resolution
	handler = mw.ClientIP(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
