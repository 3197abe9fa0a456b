package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/metrics"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

// BlockedMessage is returned to clients whose address is blocked
const BlockedMessage = "Access denied. Your IP address has been blocked due to suspicious activity."

// AccessRequest describes an incoming request at the access gate
type AccessRequest struct {
	IPAddress string
	Path      string
	Method    string
	UserAgent string
}

// GuardDecision is the outcome of an access check
type GuardDecision struct {
	Allowed bool
	Status  int
	Message string
	Event   *model.SecurityEvent
}

// AccessGuard denies requests from blocked addresses
type AccessGuard struct {
	attempts AttemptStore
	cache    BlockStateCache
	raiser   *EventRaiser
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewAccessGuard creates a new AccessGuard. cache may be nil.
func NewAccessGuard(attempts AttemptStore, cache BlockStateCache, raiser *EventRaiser, m *metrics.Metrics, log *logger.Logger) *AccessGuard {
	return &AccessGuard{
		attempts: attempts,
		cache:    cache,
		raiser:   raiser,
		metrics:  m,
		log:      log.WithComponent("access_guard"),
	}
}

// Check decides whether the request may proceed. Lookup failures allow it.
func (g *AccessGuard) Check(ctx context.Context, req AccessRequest) GuardDecision {
	blocked, err := g.isBlocked(ctx, req.IPAddress)
	if err != nil {
		g.metrics.MonitorError("access_guard")
		g.log.Error().Err(err).Str("ip_address", req.IPAddress).Msg("failed to check blocked status, allowing request")
		return GuardDecision{Allowed: true}
	}
	if !blocked {
		return GuardDecision{Allowed: true}
	}

	g.metrics.BlockedRequest()
	decision := GuardDecision{
		Allowed: false,
		Status:  http.StatusForbidden,
		Message: BlockedMessage,
	}

	ev, err := g.raiser.Raise(ctx, &model.SecurityEvent{
		Type:        model.EventTypeUnauthorizedAccess,
		Severity:    model.SeverityHigh,
		Description: fmt.Sprintf("Blocked IP attempted access: %s", req.IPAddress),
		IPAddress:   req.IPAddress,
		UserAgent:   optional(req.UserAgent),
		Endpoint:    optional(req.Path),
		Method:      optional(req.Method),
		Metadata:    map[string]interface{}{"blocked": true},
	})
	if err != nil {
		g.metrics.MonitorError("access_guard")
		g.log.Error().Err(err).Str("ip_address", req.IPAddress).Msg("failed to raise blocked access event")
	}
	decision.Event = ev

	return decision
}

func (g *AccessGuard) isBlocked(ctx context.Context, ip string) (bool, error) {
	if g.cache != nil {
		blocked, found, err := g.cache.Get(ctx, ip)
		if err == nil && found {
			return blocked, nil
		}
		if err != nil {
			g.log.Warn().Err(err).Str("ip_address", ip).Msg("block cache unavailable")
		}
	}

	blocked, err := g.attempts.HasBlocked(ctx, ip)
	if err != nil {
		return false, err
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, ip, blocked); err != nil {
			g.log.Warn().Err(err).Str("ip_address", ip).Msg("failed to cache block state")
		}
	}
	return blocked, nil
}
