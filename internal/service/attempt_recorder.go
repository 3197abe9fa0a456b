package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/metrics"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

// AttemptInput describes one authentication attempt to record
type AttemptInput struct {
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	UserID        string
	FailureReason string
}

// maxEmailLength is the width of login_attempts.email in characters
const maxEmailLength = 255

// AttemptRecorder stores login attempts and runs anomaly detection on failures
type AttemptRecorder struct {
	attempts AttemptStore
	detector *AnomalyDetector
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// NewAttemptRecorder creates a new AttemptRecorder
func NewAttemptRecorder(attempts AttemptStore, detector *AnomalyDetector, m *metrics.Metrics, log *logger.Logger) *AttemptRecorder {
	return &AttemptRecorder{
		attempts: attempts,
		detector: detector,
		metrics:  m,
		log:      log.WithComponent("attempt_recorder"),
		now:      time.Now,
	}
}

// RecordAttempt stores the attempt unblocked and, for a failure, evaluates
// the anomaly rules before returning. It never fails the caller.
func (r *AttemptRecorder) RecordAttempt(ctx context.Context, in AttemptInput) MonitorResult {
	var result MonitorResult

	// oversized input is still a failure worth counting
	in.Email = truncateRunes(in.Email, maxEmailLength)

	attempt := &model.LoginAttempt{
		ID:        generateID("la"),
		Email:     in.Email,
		IPAddress: in.IPAddress,
		UserAgent: optional(in.UserAgent),
		Success:   in.Success,
		UserID:    optional(in.UserID),
		Blocked:   false,
		CreatedAt: r.now(),
	}
	if !in.Success {
		attempt.FailureReason = optional(in.FailureReason)
	}

	if err := r.attempts.Create(ctx, attempt); err != nil {
		r.metrics.MonitorError("attempt_recorder")
		r.log.Error().Err(err).
			Str("email", in.Email).
			Str("ip_address", in.IPAddress).
			Msg("failed to record login attempt")
		result.fail(err)
		return result
	}
	r.metrics.LoginAttempt(in.Success)

	if !in.Success {
		result.merge(r.detector.Evaluate(ctx, in.Email, in.IPAddress))
	}
	return result
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
