package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/metrics"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
	"github.com/riskianand4/internet-stock-tracker-84/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Review service errors
var (
	ErrEventNotFound        = errors.New("security event not found")
	ErrEventAlreadyResolved = errors.New("security event already resolved")
	ErrInvalidBlockAction   = errors.New("action must be block or unblock")
	ErrInvalidIPAddress     = errors.New("invalid IP address")
	ErrInvalidFilter        = errors.New("invalid filter")
)

// Listing limits
const (
	DefaultEventLimit   = 50
	DefaultAttemptLimit = 100
	MaxListLimit        = 500
	DefaultStatsDays    = 7
	MaxStatsDays        = 365

	topThreatsLimit    = 5
	suspiciousIPsLimit = 10
)

// Block actions
const (
	BlockActionBlock   = "block"
	BlockActionUnblock = "unblock"
)

// IPBlockRequest is a manual block or unblock of one address
type IPBlockRequest struct {
	IPAddress string
	Action    string
	Reason    string
	Actor     string
}

// IPBlockResult reports what a manual block override changed
type IPBlockResult struct {
	IPAddress        string `json:"ipAddress"`
	Action           string `json:"action"`
	AffectedAttempts int64  `json:"affectedAttempts"`
	MarkerCreated    bool   `json:"markerCreated,omitempty"`
}

// SecurityReviewService backs the admin review surface
type SecurityReviewService struct {
	attempts AttemptStore
	events   EventStore
	audit    AuditStore
	cache    BlockStateCache
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// NewSecurityReviewService creates a new SecurityReviewService. audit and
// cache may be nil.
func NewSecurityReviewService(
	attempts AttemptStore,
	events EventStore,
	audit AuditStore,
	cache BlockStateCache,
	m *metrics.Metrics,
	log *logger.Logger,
) *SecurityReviewService {
	return &SecurityReviewService{
		attempts: attempts,
		events:   events,
		audit:    audit,
		cache:    cache,
		metrics:  m,
		log:      log.WithComponent("security_review"),
		now:      time.Now,
	}
}

// ListSecurityEvents returns the newest events matching filter
func (s *SecurityReviewService) ListSecurityEvents(ctx context.Context, filter model.SecurityEventFilter, limit int) ([]*model.SecurityEvent, error) {
	if filter.Severity != "" && !filter.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidFilter, filter.Severity)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFilter, filter.Type)
	}

	events, err := s.events.List(ctx, filter, clampLimit(limit, DefaultEventLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	return events, nil
}

// ListLoginAttempts returns the newest attempts whose address contains the filter
func (s *SecurityReviewService) ListLoginAttempts(ctx context.Context, filter model.LoginAttemptFilter, limit int) ([]*model.LoginAttempt, error) {
	attempts, err := s.attempts.List(ctx, filter, clampLimit(limit, DefaultAttemptLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list login attempts: %w", err)
	}
	if attempts == nil {
		attempts = []*model.LoginAttempt{}
	}
	return attempts, nil
}

// GetSecurityStats aggregates the last days days
func (s *SecurityReviewService) GetSecurityStats(ctx context.Context, days int) (*model.SecurityStats, error) {
	if days <= 0 {
		days = DefaultStatsDays
	}
	days = min(days, MaxStatsDays)
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	var (
		stats                 model.SecurityStats
		totalEvents, critical int
		totalAttempts, failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totalEvents, critical, err = s.events.CountSince(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		totalAttempts, failed, err = s.attempts.CountSince(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		stats.TopThreats, err = s.events.TopTypesSince(gctx, since, topThreatsLimit)
		return err
	})
	g.Go(func() error {
		var err error
		stats.SuspiciousIPs, err = s.attempts.TopFailingIPs(gctx, since, suspiciousIPsLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to aggregate security stats: %w", err)
	}

	stats.Overview = model.SecurityOverview{
		SecurityEvents: totalEvents,
		LoginAttempts:  totalAttempts,
		FailedLogins:   failed,
		CriticalEvents: critical,
		SuccessRate:    successRate(totalAttempts, failed),
	}
	if stats.TopThreats == nil {
		stats.TopThreats = []model.TypeCount{}
	}
	if stats.SuspiciousIPs == nil {
		stats.SuspiciousIPs = []model.IPFailureCount{}
	}
	return &stats, nil
}

// successRate is the percentage of successful attempts with two decimals
func successRate(total, failed int) string {
	if total == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(total-failed)/float64(total)*100)
}

// ResolveSecurityEvent marks an event resolved exactly once
func (s *SecurityReviewService) ResolveSecurityEvent(ctx context.Context, id, resolvedBy string, notes *string) (*model.SecurityEvent, error) {
	ev, err := s.events.Resolve(ctx, id, resolvedBy, notes, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrEventNotFound
	case errors.Is(err, repository.ErrAlreadyResolved):
		return nil, ErrEventAlreadyResolved
	case err != nil:
		return nil, fmt.Errorf("failed to resolve security event: %w", err)
	}

	s.log.Info().Str("event_id", id).Str("resolved_by", resolvedBy).Msg("security event resolved")

	metadata := map[string]interface{}{"type": string(ev.Type), "severity": string(ev.Severity)}
	if notes != nil {
		metadata["notes"] = *notes
	}
	s.record(ctx, resolvedBy, model.AuditActionResolveEvent, model.AuditResourceSecurityEvent, id, metadata)

	return ev, nil
}

// SetIPBlockState applies a manual block or unblock of one address
func (s *SecurityReviewService) SetIPBlockState(ctx context.Context, req IPBlockRequest) (*IPBlockResult, error) {
	ip := net.ParseIP(req.IPAddress)
	if ip == nil {
		return nil, ErrInvalidIPAddress
	}
	addr := ip.String()

	result := &IPBlockResult{IPAddress: addr, Action: req.Action}

	switch req.Action {
	case BlockActionBlock:
		changed, err := s.attempts.BlockIP(ctx, addr)
		if err != nil {
			return nil, err
		}
		result.AffectedAttempts = changed

		if changed == 0 {
			// no unblocked rows: either already blocked or no history at all
			already, err := s.attempts.HasBlocked(ctx, addr)
			if err != nil {
				return nil, err
			}
			if !already {
				if err := s.attempts.InsertBlockMarker(ctx, generateID("la"), addr, s.now()); err != nil {
					return nil, err
				}
				result.MarkerCreated = true
			}
		}
		s.metrics.IPBlocked("manual")

	case BlockActionUnblock:
		changed, err := s.attempts.UnblockIP(ctx, addr)
		if err != nil {
			return nil, err
		}
		result.AffectedAttempts = changed

	default:
		return nil, ErrInvalidBlockAction
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, addr); err != nil {
			s.log.Warn().Err(err).Str("ip_address", addr).Msg("failed to invalidate block cache")
		}
	}

	action := model.AuditActionBlockIP
	if req.Action == BlockActionUnblock {
		action = model.AuditActionUnblockIP
	}
	s.record(ctx, req.Actor, action, model.AuditResourceIPAddress, addr, map[string]interface{}{
		"reason":           req.Reason,
		"affectedAttempts": result.AffectedAttempts,
		"markerCreated":    result.MarkerCreated,
	})

	s.log.Warn().
		Str("ip_address", addr).
		Str("action", req.Action).
		Str("reason", req.Reason).
		Str("actor", req.Actor).
		Int64("affected_attempts", result.AffectedAttempts).
		Msg("manual IP block state change")

	return result, nil
}

// AuditTrail returns the newest audit entries for one resource
func (s *SecurityReviewService) AuditTrail(ctx context.Context, resourceType, resourceID string, limit int) ([]*model.AuditLog, error) {
	if resourceType != model.AuditResourceSecurityEvent && resourceType != model.AuditResourceIPAddress {
		return nil, fmt.Errorf("%w: unknown resource type %q", ErrInvalidFilter, resourceType)
	}
	if resourceType == model.AuditResourceIPAddress {
		ip := net.ParseIP(resourceID)
		if ip == nil {
			return nil, ErrInvalidIPAddress
		}
		resourceID = ip.String()
	}
	if s.audit == nil {
		return []*model.AuditLog{}, nil
	}

	entries, err := s.audit.ListByResource(ctx, resourceType, resourceID, clampLimit(limit, DefaultEventLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit trail: %w", err)
	}
	return entries, nil
}

// record stores an audit entry. A failed write is logged and does not undo
// the change it describes.
func (s *SecurityReviewService) record(ctx context.Context, actor, action, resourceType, resourceID string, metadata map[string]interface{}) {
	if s.audit == nil {
		return
	}
	err := s.audit.Create(ctx, &model.AuditLog{
		ID:           generateID("aud"),
		UserID:       optional(actor),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		Metadata:     metadata,
		CreatedAt:    s.now(),
	})
	if err != nil {
		s.metrics.MonitorError("audit")
		s.log.Error().Err(err).Str("action", action).Str("resource_id", resourceID).Msg("failed to write audit log")
	}
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, MaxListLimit)
}
