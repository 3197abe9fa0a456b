package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/config"
	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/metrics"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

// SweepReport summarizes one auto-block sweep
type SweepReport struct {
	Skipped    bool                   `json:"skipped"`
	SkipReason string                 `json:"skipReason,omitempty"`
	Candidates int                    `json:"candidates"`
	Blocked    []model.IPFailureCount `json:"blocked"`
	Errors     int                    `json:"errors"`
	Duration   time.Duration          `json:"-"`
}

// AutoBlocker periodically blocks addresses whose unblocked failures in the
// trailing window reach the auto-block threshold
type AutoBlocker struct {
	attempts AttemptStore
	raiser   *EventRaiser
	cache    BlockStateCache
	lock     SweepLock
	cfg      config.MonitorConfig
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAutoBlocker creates a new AutoBlocker. cache and lock may be nil.
func NewAutoBlocker(
	attempts AttemptStore,
	raiser *EventRaiser,
	cache BlockStateCache,
	lock SweepLock,
	cfg config.MonitorConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) *AutoBlocker {
	return &AutoBlocker{
		attempts: attempts,
		raiser:   raiser,
		cache:    cache,
		lock:     lock,
		cfg:      cfg,
		metrics:  m,
		log:      log.WithComponent("auto_blocker"),
		now:      time.Now,
	}
}

// Start runs a sweep every sweep interval until Stop is called or ctx ends.
// Calling Start on a running blocker does nothing.
func (b *AutoBlocker) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.loop(ctx, b.done)

	b.log.Info().
		Dur("interval", b.cfg.SweepInterval).
		Int("threshold", b.cfg.AutoBlockThreshold).
		Msg("auto-blocker started")
}

// Stop ends the schedule and waits for an in-flight sweep to finish
func (b *AutoBlocker) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	b.log.Info().Msg("auto-blocker stopped")
}

func (b *AutoBlocker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.RunSweep(ctx)
		}
	}
}

// RunSweep performs one sweep. It is skipped when another sweep is running
// in this process or, with a lock configured, in another replica.
func (b *AutoBlocker) RunSweep(ctx context.Context) SweepReport {
	if !b.running.CompareAndSwap(false, true) {
		b.log.Warn().Msg("previous sweep still running, skipping")
		return SweepReport{Skipped: true, SkipReason: "sweep already running"}
	}
	defer b.running.Store(false)

	if b.lock != nil {
		token, ok, err := b.lock.TryAcquire(ctx)
		if err != nil {
			b.metrics.MonitorError("auto_blocker")
			b.log.Error().Err(err).Msg("failed to acquire sweep lock, skipping")
			return SweepReport{Skipped: true, SkipReason: "sweep lock unavailable"}
		}
		if !ok {
			b.log.Debug().Msg("sweep lock held by another instance, skipping")
			return SweepReport{Skipped: true, SkipReason: "sweep running on another instance"}
		}
		defer func() {
			if err := b.lock.Release(context.WithoutCancel(ctx), token); err != nil {
				b.log.Warn().Err(err).Msg("failed to release sweep lock")
			}
		}()
	}

	start := b.now()
	report := b.sweep(ctx)
	report.Duration = b.now().Sub(start)
	b.metrics.ObserveSweep(report.Duration)

	b.log.Info().
		Int("candidates", report.Candidates).
		Int("blocked", len(report.Blocked)).
		Int("errors", report.Errors).
		Dur("duration", report.Duration).
		Msg("auto-block sweep completed")

	return report
}

func (b *AutoBlocker) sweep(ctx context.Context) SweepReport {
	report := SweepReport{Blocked: []model.IPFailureCount{}}
	since := b.now().Add(-b.cfg.FailureWindow)

	candidates, err := b.attempts.AggregateUnblockedFailures(ctx, since, b.cfg.AutoBlockThreshold)
	if err != nil {
		b.metrics.MonitorError("auto_blocker")
		b.log.Error().Err(err).Msg("failed to aggregate failed attempts")
		report.Errors++
		return report
	}
	report.Candidates = len(candidates)

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			remaining := len(candidates) - i
			b.metrics.MonitorError("auto_blocker")
			b.log.Warn().Err(err).Int("remaining", remaining).Msg("sweep canceled, addresses left for the next sweep")
			report.Errors += remaining
			break
		}
		blocked, err := b.block(ctx, c)
		if err != nil {
			b.metrics.MonitorError("auto_blocker")
			b.log.Error().Err(err).Str("ip_address", c.IPAddress).Msg("failed to auto-block address")
			report.Errors++
		}
		if blocked {
			report.Blocked = append(report.Blocked, c)
		}
	}
	return report
}

// block flags the address and raises one critical event. A block that
// changed no rows lost a race with another actor and raises nothing.
func (b *AutoBlocker) block(ctx context.Context, c model.IPFailureCount) (bool, error) {
	changed, err := b.attempts.BlockIP(ctx, c.IPAddress)
	if err != nil {
		return false, err
	}
	if changed == 0 {
		b.log.Debug().Str("ip_address", c.IPAddress).Msg("address already blocked")
		return false, nil
	}

	// the block is committed; its cache entry and event must follow even if
	// the caller has gone away
	ctx = context.WithoutCancel(ctx)

	if b.cache != nil {
		if err := b.cache.Invalidate(ctx, c.IPAddress); err != nil {
			b.log.Warn().Err(err).Str("ip_address", c.IPAddress).Msg("failed to invalidate block cache")
		}
	}
	b.metrics.IPBlocked("auto")

	_, err = b.raiser.Raise(ctx, &model.SecurityEvent{
		Type:     model.EventTypeSuspiciousActivity,
		Severity: model.SeverityCritical,
		Description: fmt.Sprintf("Auto-blocked IP due to excessive failed login attempts: %s (%d attempts)",
			c.IPAddress, c.Count),
		IPAddress: c.IPAddress,
		Metadata: map[string]interface{}{
			"autoBlocked":    true,
			"failedAttempts": c.Count,
			"timeframe":      windowLabel(b.cfg.FailureWindow),
		},
	})
	if err != nil {
		// the address stays blocked; only the event is missing
		return true, fmt.Errorf("blocked %s but failed to raise event: %w", c.IPAddress, err)
	}
	return true, nil
}
