package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/metrics"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

// RequestOutcome describes a completed HTTP request
type RequestOutcome struct {
	Method       string
	Path         string
	IPAddress    string
	UserAgent    string
	StatusCode   int
	ResponseTime time.Duration
}

// RequestMonitor raises events for rate-limited, unauthorized and slow requests
type RequestMonitor struct {
	raiser        *EventRaiser
	dispatcher    *Dispatcher
	slowThreshold time.Duration
	metrics       *metrics.Metrics
	log           *logger.Logger
}

// NewRequestMonitor creates a new RequestMonitor
func NewRequestMonitor(raiser *EventRaiser, dispatcher *Dispatcher, slowThreshold time.Duration, m *metrics.Metrics, log *logger.Logger) *RequestMonitor {
	return &RequestMonitor{
		raiser:        raiser,
		dispatcher:    dispatcher,
		slowThreshold: slowThreshold,
		metrics:       m,
		log:           log.WithComponent("request_monitor"),
	}
}

// Observe evaluates outcome in the background
func (m *RequestMonitor) Observe(ctx context.Context, outcome RequestOutcome) {
	m.dispatcher.Go(ctx, func(ctx context.Context) {
		m.OnRequestComplete(ctx, outcome)
	})
}

// OnRequestComplete applies each rule independently to a finished request
func (m *RequestMonitor) OnRequestComplete(ctx context.Context, o RequestOutcome) MonitorResult {
	var result MonitorResult
	responseMs := o.ResponseTime.Milliseconds()

	if o.StatusCode == http.StatusTooManyRequests {
		m.raise(ctx, &result, o, model.EventTypeRateLimitExceeded, model.SeverityMedium,
			fmt.Sprintf("Rate limit exceeded for %s %s", o.Method, o.Path))
	}

	if o.StatusCode == http.StatusUnauthorized || o.StatusCode == http.StatusForbidden {
		m.raise(ctx, &result, o, model.EventTypeUnauthorizedAccess, model.SeverityMedium,
			fmt.Sprintf("Unauthorized access attempt to %s %s", o.Method, o.Path))
	}

	if o.ResponseTime > m.slowThreshold {
		m.raise(ctx, &result, o, model.EventTypeSuspiciousActivity, model.SeverityLow,
			fmt.Sprintf("Unusually slow response time: %dms for %s %s", responseMs, o.Method, o.Path))
	}

	return result
}

func (m *RequestMonitor) raise(ctx context.Context, result *MonitorResult, o RequestOutcome, t model.EventType, s model.Severity, description string) {
	status := o.StatusCode
	ev, err := m.raiser.Raise(ctx, &model.SecurityEvent{
		Type:        t,
		Severity:    s,
		Description: description,
		IPAddress:   o.IPAddress,
		UserAgent:   optional(o.UserAgent),
		Endpoint:    &o.Path,
		Method:      &o.Method,
		StatusCode:  &status,
		Metadata: map[string]interface{}{
			"responseTime": o.ResponseTime.Milliseconds(),
		},
	})
	if err != nil {
		m.metrics.MonitorError("request_monitor")
		m.log.Error().Err(err).
			Str("method", o.Method).
			Str("path", o.Path).
			Int("status", o.StatusCode).
			Msg("failed to raise request event")
		result.fail(err)
		return
	}
	result.add(ev)
}
