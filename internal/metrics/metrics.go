// Package metrics exposes Prometheus collectors for the security monitor.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the monitor's collectors
type Metrics struct {
	gatherer prometheus.Gatherer

	loginAttempts   *prometheus.CounterVec
	securityEvents  *prometheus.CounterVec
	blockedRequests prometheus.Counter
	rateLimitHits   *prometheus.CounterVec
	ipsBlocked      *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	monitorErrors   *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the collectors on reg. A *prometheus.Registry is used as the
// gatherer for Handler; any other registerer falls back to the default gatherer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &Metrics{
		gatherer: gatherer,
		loginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secmon_login_attempts_total",
			Help: "Total number of recorded login attempts",
		}, []string{"result"}),
		securityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secmon_security_events_total",
			Help: "Total number of raised security events",
		}, []string{"type", "severity"}),
		blockedRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "secmon_blocked_requests_total",
			Help: "Total number of requests denied by the access guard",
		}),
		rateLimitHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secmon_rate_limit_hits_total",
			Help: "Total number of requests rejected by a rate limiter",
		}, []string{"limiter"}),
		ipsBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secmon_ips_blocked_total",
			Help: "Total number of addresses blocked",
		}, []string{"source"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "secmon_autoblock_sweep_duration_seconds",
			Help:    "Duration of auto-block sweeps",
			Buckets: prometheus.DefBuckets,
		}),
		monitorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secmon_monitor_errors_total",
			Help: "Total number of swallowed monitoring failures",
		}, []string{"component"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "secmon_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

// LoginAttempt counts a recorded attempt
func (m *Metrics) LoginAttempt(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.loginAttempts.WithLabelValues(result).Inc()
}

// SecurityEvent counts a raised event
func (m *Metrics) SecurityEvent(eventType, severity string) {
	if m == nil {
		return
	}
	m.securityEvents.WithLabelValues(eventType, severity).Inc()
}

// BlockedRequest counts a request denied by the access guard
func (m *Metrics) BlockedRequest() {
	if m == nil {
		return
	}
	m.blockedRequests.Inc()
}

// RateLimitHit counts a rejected request for the named limiter
func (m *Metrics) RateLimitHit(limiter string) {
	if m == nil {
		return
	}
	m.rateLimitHits.WithLabelValues(limiter).Inc()
}

// IPBlocked counts a block, source is "auto" or "manual"
func (m *Metrics) IPBlocked(source string) {
	if m == nil {
		return
	}
	m.ipsBlocked.WithLabelValues(source).Inc()
}

// ObserveSweep records the duration of one auto-block sweep
func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

// MonitorError counts a monitoring failure that was logged and swallowed
func (m *Metrics) MonitorError(component string) {
	if m == nil {
		return
	}
	m.monitorErrors.WithLabelValues(component).Inc()
}

// ObserveHTTP records the latency of a served request
func (m *Metrics) ObserveHTTP(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

// Handler serves the registered collectors in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
