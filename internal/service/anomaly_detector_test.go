package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/config"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

func (s *MonitorSuite) recordFailure(ip, email string) MonitorResult {
	return s.recorder.RecordAttempt(s.ctx, AttemptInput{
		Email:         email,
		IPAddress:     ip,
		FailureReason: model.FailureReasonInvalidPassword,
	})
}

func (s *MonitorSuite) TestIPThresholdBoundary() {
	ip := "198.51.100.7"

	for i := 1; i <= 9; i++ {
		res := s.recordFailure(ip, fmt.Sprintf("user%d@example.com", i))
		s.NoError(res.Err)
		s.Empty(res.Events, "attempt %d must not raise", i)
	}

	res := s.recordFailure(ip, "user10@example.com")
	s.Require().Len(res.Events, 1)
	s.Equal(model.SeverityMedium, res.Events[0].Severity)
	s.Equal(model.EventTypeSuspiciousActivity, res.Events[0].Type)
	s.Equal("Multiple failed login attempts from IP: 198.51.100.7 (10 attempts in 1 hour)", res.Events[0].Description)
	s.Equal(10, res.Events[0].Metadata["failedAttempts"])
	s.Equal("1hour", res.Events[0].Metadata["timeframe"])

	for i := 11; i <= 19; i++ {
		res = s.recordFailure(ip, fmt.Sprintf("user%d@example.com", i))
		s.Require().Len(res.Events, 1)
		s.Equal(model.SeverityMedium, res.Events[0].Severity)
	}

	res = s.recordFailure(ip, "user20@example.com")
	s.Require().Len(res.Events, 1)
	s.Equal(model.SeverityHigh, res.Events[0].Severity)
}

func (s *MonitorSuite) TestEmailRuleIndependentOfIP() {
	for i := 1; i <= 5; i++ {
		res := s.recordFailure(fmt.Sprintf("203.0.113.%d", i), "victim@example.com")
		if i < 5 {
			s.Empty(res.Events)
			continue
		}
		s.Require().Len(res.Events, 1)
		s.Equal("victim@example.com", res.Events[0].Metadata["email"])
		s.Equal(model.SeverityMedium, res.Events[0].Severity)
		s.Equal("203.0.113.5", res.Events[0].IPAddress)
	}

	for _, ev := range s.events.All() {
		s.Contains(ev.Description, "for email:")
	}
}

func (s *MonitorSuite) TestIPRuleIndependentOfEmail() {
	for i := 1; i <= 10; i++ {
		s.recordFailure("192.0.2.44", fmt.Sprintf("spray%d@example.com", i))
	}

	events := s.events.All()
	s.Require().Len(events, 1)
	s.Contains(events[0].Description, "from IP: 192.0.2.44")
	s.NotContains(events[0].Metadata, "email")
}

func (s *MonitorSuite) TestBothRulesFireTogether() {
	s.seedFailures("192.0.2.1", "target@example.com", 9, time.Minute)

	res := s.recordFailure("192.0.2.1", "target@example.com")
	s.Require().Len(res.Events, 2)
	s.Equal(model.SeverityMedium, res.Events[0].Severity, "ip rule at 10")
	s.Equal(model.SeverityHigh, res.Events[1].Severity, "email rule at 10")
}

func (s *MonitorSuite) TestWindowExcludesOldFailures() {
	ip := "192.0.2.60"
	s.seedFailures(ip, "old@example.com", 1, 61*time.Minute)
	s.seedFailures(ip, "a@example.com", 8, time.Minute)

	res := s.recordFailure(ip, "b@example.com")
	s.Empty(res.Events, "a failure 61 minutes old must not count")

	s.SetupTest()
	s.seedFailures(ip, "old@example.com", 1, 59*time.Minute)
	s.seedFailures(ip, "a@example.com", 8, time.Minute)

	res = s.recordFailure(ip, "b@example.com")
	s.Require().Len(res.Events, 1, "a failure 59 minutes old counts")
}

func (s *MonitorSuite) TestWindowBoundaryIsExclusive() {
	ip := "192.0.2.61"
	s.seedFailures(ip, "edge@example.com", 1, time.Hour)
	s.seedFailures(ip, "a@example.com", 8, time.Minute)

	res := s.recordFailure(ip, "b@example.com")
	s.Empty(res.Events)
}

func (s *MonitorSuite) TestSuccessfulAttemptSkipsDetection() {
	s.seedFailures("192.0.2.9", "ok@example.com", 30, time.Minute)

	res := s.recorder.RecordAttempt(s.ctx, AttemptInput{
		Email:     "ok@example.com",
		IPAddress: "192.0.2.9",
		Success:   true,
		UserID:    "usr_1",
	})
	s.NoError(res.Err)
	s.Empty(res.Events)

	rows := s.attempts.All()
	last := rows[len(rows)-1]
	s.True(last.Success)
	s.False(last.Blocked)
	s.Nil(last.FailureReason)
	s.Equal(s.clock.Now(), last.CreatedAt)
}

func (s *MonitorSuite) TestRecordAttemptSwallowsStoreFailure() {
	s.attempts.Set("Create", errors.New("disk full"))

	done := make(chan MonitorResult, 1)
	go func() { done <- s.recordFailure("192.0.2.5", "x@example.com") }()

	select {
	case res := <-done:
		s.Error(res.Err)
		s.Empty(res.Events)
	case <-time.After(time.Second):
		s.Fail("RecordAttempt did not return")
	}
}

func (s *MonitorSuite) TestRecordAttemptSwallowsEventStoreFailure() {
	s.events.Set("Create", errors.New("event store down"))
	s.seedFailures("192.0.2.5", "x@example.com", 20, time.Minute)

	res := s.recordFailure("192.0.2.5", "x@example.com")
	s.Error(res.Err)
	s.Empty(res.Events)
	s.Len(s.attempts.All(), 21, "the attempt itself is still stored")
}

func (s *MonitorSuite) TestDetectorCountErrorDoesNotStopOtherRule() {
	s.attempts.Set("CountFailuresByIP", errors.New("timeout"))
	s.seedFailures("192.0.2.5", "x@example.com", 4, time.Minute)

	res := s.recordFailure("192.0.2.6", "x@example.com")
	s.Error(res.Err)
	s.Require().Len(res.Events, 1)
	s.Equal("x@example.com", res.Events[0].Metadata["email"])
}

type memorySuppressor struct {
	seen map[string]bool
}

func (m *memorySuppressor) First(_ context.Context, key string) (bool, error) {
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (s *MonitorSuite) TestOncePerWindowPolicySuppressesRepeats() {
	s.cfg.DuplicatePolicy = config.DuplicatePolicyOncePerWindow
	s.build(&memorySuppressor{seen: map[string]bool{}}, nil)

	ip := "198.51.100.99"
	raised := 0
	var severities []model.Severity
	for i := 1; i <= 25; i++ {
		res := s.recordFailure(ip, fmt.Sprintf("u%d@example.com", i))
		for _, ev := range res.Events {
			raised++
			severities = append(severities, ev.Severity)
		}
	}

	s.Equal(2, raised, "one medium and one high escalation")
	s.Equal([]model.Severity{model.SeverityMedium, model.SeverityHigh}, severities)
}

func (s *MonitorSuite) TestAlwaysPolicyIgnoresSuppressor() {
	s.build(&memorySuppressor{seen: map[string]bool{}}, nil)

	s.seedFailures("198.51.100.98", "", 10, time.Minute)
	for i := 0; i < 3; i++ {
		res := s.recordFailure("198.51.100.98", fmt.Sprintf("n%d@example.com", i))
		s.Len(res.Events, 1)
	}
}

func (s *MonitorSuite) TestCustomWindowLabel() {
	s.cfg.FailureWindow = 30 * time.Minute
	s.build(nil, nil)

	s.seedFailures("192.0.2.70", "", 9, time.Minute)
	res := s.recordFailure("192.0.2.70", "w@example.com")
	s.Require().Len(res.Events, 1)
	s.Equal("30min", res.Events[0].Metadata["timeframe"])
	s.Contains(res.Events[0].Description, "in 30 minutes")
}
