package service

import (
	"context"
	"fmt"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/config"
	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/metrics"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

// AnomalyDetector raises suspicious_activity events when failed logins from
// one address or for one account cross a threshold within the failure window
type AnomalyDetector struct {
	attempts   AttemptStore
	raiser     *EventRaiser
	suppressor DuplicateSuppressor
	cfg        config.MonitorConfig
	metrics    *metrics.Metrics
	log        *logger.Logger
	now        func() time.Time
}

// NewAnomalyDetector creates a new AnomalyDetector. suppressor is only
// consulted under the once_per_window duplicate policy and may be nil.
func NewAnomalyDetector(
	attempts AttemptStore,
	raiser *EventRaiser,
	suppressor DuplicateSuppressor,
	cfg config.MonitorConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) *AnomalyDetector {
	if cfg.DuplicatePolicy != config.DuplicatePolicyOncePerWindow {
		suppressor = nil
	}
	return &AnomalyDetector{
		attempts:   attempts,
		raiser:     raiser,
		suppressor: suppressor,
		cfg:        cfg,
		metrics:    m,
		log:        log.WithComponent("anomaly_detector"),
		now:        time.Now,
	}
}

// Evaluate applies the address rule and the account rule independently
func (d *AnomalyDetector) Evaluate(ctx context.Context, email, ip string) MonitorResult {
	var result MonitorResult
	since := d.now().Add(-d.cfg.FailureWindow)

	ipFailures, err := d.attempts.CountFailuresByIP(ctx, ip, since)
	if err != nil {
		d.swallow(&result, err, "failed to count failures by ip")
	} else if severity, ok := classify(ipFailures, d.cfg.IPMediumThreshold, d.cfg.IPHighThreshold); ok {
		d.raise(ctx, &result, "ip:"+ip, &model.SecurityEvent{
			Type:     model.EventTypeSuspiciousActivity,
			Severity: severity,
			Description: fmt.Sprintf("Multiple failed login attempts from IP: %s (%d attempts in %s)",
				ip, ipFailures, windowText(d.cfg.FailureWindow)),
			IPAddress: ip,
			Metadata: map[string]interface{}{
				"failedAttempts": ipFailures,
				"timeframe":      windowLabel(d.cfg.FailureWindow),
			},
		})
	}

	emailFailures, err := d.attempts.CountFailuresByEmail(ctx, email, since)
	if err != nil {
		d.swallow(&result, err, "failed to count failures by email")
	} else if severity, ok := classify(emailFailures, d.cfg.EmailMediumThreshold, d.cfg.EmailHighThreshold); ok {
		d.raise(ctx, &result, "email:"+email, &model.SecurityEvent{
			Type:     model.EventTypeSuspiciousActivity,
			Severity: severity,
			Description: fmt.Sprintf("Multiple failed login attempts for email: %s (%d attempts in %s)",
				email, emailFailures, windowText(d.cfg.FailureWindow)),
			IPAddress: ip,
			Metadata: map[string]interface{}{
				"email":          email,
				"failedAttempts": emailFailures,
				"timeframe":      windowLabel(d.cfg.FailureWindow),
			},
		})
	}

	return result
}

// classify maps a failure count to a severity; ok is false below medium
func classify(count, medium, high int) (model.Severity, bool) {
	switch {
	case count >= high:
		return model.SeverityHigh, true
	case count >= medium:
		return model.SeverityMedium, true
	}
	return "", false
}

func (d *AnomalyDetector) raise(ctx context.Context, result *MonitorResult, key string, ev *model.SecurityEvent) {
	if d.suppressor != nil {
		first, err := d.suppressor.First(ctx, key+":"+string(ev.Severity))
		if err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("duplicate check failed, raising anyway")
		} else if !first {
			d.log.Debug().Str("key", key).Str("severity", string(ev.Severity)).Msg("duplicate event suppressed")
			return
		}
	}

	raised, err := d.raiser.Raise(ctx, ev)
	if err != nil {
		d.swallow(result, err, "failed to raise suspicious activity event")
		return
	}
	result.add(raised)
}

func (d *AnomalyDetector) swallow(result *MonitorResult, err error, msg string) {
	d.metrics.MonitorError("anomaly_detector")
	d.log.Error().Err(err).Msg(msg)
	result.fail(err)
}
