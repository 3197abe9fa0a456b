package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

func (s *MonitorSuite) TestSweepBlocksOnceAndRaisesOneCriticalEvent() {
	s.seedFailures("203.0.113.20", "a@example.com", 50, time.Minute)
	s.seedFailures("203.0.113.21", "b@example.com", 49, time.Minute)

	first := s.blocker.RunSweep(s.ctx)
	s.False(first.Skipped)
	s.Equal(1, first.Candidates)
	s.Require().Len(first.Blocked, 1)
	s.Equal(model.IPFailureCount{IPAddress: "203.0.113.20", Count: 50}, first.Blocked[0])

	second := s.blocker.RunSweep(s.ctx)
	s.Zero(second.Candidates)
	s.Empty(second.Blocked)

	critical := 0
	for _, ev := range s.events.All() {
		if ev.Severity == model.SeverityCritical {
			critical++
			s.Equal("Auto-blocked IP due to excessive failed login attempts: 203.0.113.20 (50 attempts)", ev.Description)
			s.Equal(true, ev.Metadata["autoBlocked"])
			s.Equal(50, ev.Metadata["failedAttempts"])
		}
	}
	s.Equal(1, critical)

	for _, row := range s.attempts.All() {
		s.Equal(row.IPAddress == "203.0.113.20", row.Blocked, "row %s", row.ID)
	}
}

func (s *MonitorSuite) TestSweepIgnoresFailuresOutsideWindow() {
	s.seedFailures("203.0.113.30", "", 30, time.Minute)
	s.seedFailures("203.0.113.30", "", 30, 2*time.Hour)

	report := s.blocker.RunSweep(s.ctx)
	s.Zero(report.Candidates)

	for _, row := range s.attempts.All() {
		s.False(row.Blocked)
	}
}

func (s *MonitorSuite) TestSweepLosingRaceRaisesNothing() {
	s.seedFailures("203.0.113.40", "", 60, time.Minute)

	s.attempts.BeforeBlock = func(ip string) {
		s.attempts.BeforeBlock = nil
		// another actor blocks the address between aggregation and update
		_, err := s.attempts.BlockIP(context.Background(), ip)
		s.Require().NoError(err)
	}

	report := s.blocker.RunSweep(s.ctx)
	s.Equal(1, report.Candidates)
	s.Empty(report.Blocked)
	s.Empty(s.events.All())
}

func (s *MonitorSuite) TestSweepCanceledMidwayKeepsCommittedBlockEvent() {
	s.seedFailures("203.0.113.50", "", 60, time.Minute)
	s.seedFailures("203.0.113.51", "", 55, time.Minute)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	s.attempts.BeforeBlock = func(string) {
		// the caller goes away while the first address is being blocked
		cancel()
	}

	report := s.blocker.RunSweep(ctx)
	s.Equal(2, report.Candidates)
	s.Require().Len(report.Blocked, 1)
	s.Equal("203.0.113.50", report.Blocked[0].IPAddress)
	s.Equal(1, report.Errors, "the skipped address is reported")

	critical := s.eventsOfType(model.EventTypeSuspiciousActivity)
	s.Require().Len(critical, 1, "the committed block still gets its event")
	s.Equal("203.0.113.50", critical[0].IPAddress)
	s.Equal(model.SeverityCritical, critical[0].Severity)

	// the next sweep picks up the address left behind
	s.attempts.BeforeBlock = nil
	report = s.blocker.RunSweep(s.ctx)
	s.Require().Len(report.Blocked, 1)
	s.Equal("203.0.113.51", report.Blocked[0].IPAddress)
	s.Len(s.eventsOfType(model.EventTypeSuspiciousActivity), 2)
}

func (s *MonitorSuite) TestSweepContinuesAfterBlockFailure() {
	s.seedFailures("203.0.113.50", "", 55, time.Minute)
	s.seedFailures("203.0.113.51", "", 52, time.Minute)

	s.attempts.BeforeBlock = func(ip string) {
		if ip == "203.0.113.50" {
			s.attempts.Set("BlockIP", errors.New("deadlock detected"))
		} else {
			s.attempts.Set("BlockIP", nil)
		}
	}

	report := s.blocker.RunSweep(s.ctx)
	s.Equal(2, report.Candidates)
	s.Equal(1, report.Errors)
	s.Require().Len(report.Blocked, 1)
	s.Equal("203.0.113.51", report.Blocked[0].IPAddress)
}

func (s *MonitorSuite) TestSweepKeepsBlockWhenEventFails() {
	s.seedFailures("203.0.113.60", "", 50, time.Minute)
	s.events.Set("Create", errors.New("event store down"))

	report := s.blocker.RunSweep(s.ctx)
	s.Equal(1, report.Errors)
	s.Len(report.Blocked, 1)

	blocked, err := s.attempts.HasBlocked(s.ctx, "203.0.113.60")
	s.Require().NoError(err)
	s.True(blocked)
}

func (s *MonitorSuite) TestSweepAggregateFailureIsReported() {
	s.attempts.Set("AggregateUnblockedFailures", errors.New("connection reset"))

	report := s.blocker.RunSweep(s.ctx)
	s.False(report.Skipped)
	s.Equal(1, report.Errors)
	s.Empty(report.Blocked)
}

type stubLock struct {
	mu       sync.Mutex
	held     bool
	err      error
	released []string
}

func (l *stubLock) TryAcquire(context.Context) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "token-1", true, nil
}

func (l *stubLock) Release(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.released = append(l.released, token)
	return nil
}

func (s *MonitorSuite) TestSweepSkippedWhileLockHeldElsewhere() {
	lock := &stubLock{held: true}
	s.build(nil, lock)
	s.seedFailures("203.0.113.70", "", 50, time.Minute)

	report := s.blocker.RunSweep(s.ctx)
	s.True(report.Skipped)
	s.Equal("sweep running on another instance", report.SkipReason)
	s.Empty(s.events.All())
}

func (s *MonitorSuite) TestSweepReleasesLock() {
	lock := &stubLock{}
	s.build(nil, lock)

	report := s.blocker.RunSweep(s.ctx)
	s.False(report.Skipped)
	s.Equal([]string{"token-1"}, lock.released)
	s.False(lock.held)
}

func (s *MonitorSuite) TestSweepSkippedWhenLockUnavailable() {
	s.build(nil, &stubLock{err: errors.New("redis down")})

	report := s.blocker.RunSweep(s.ctx)
	s.True(report.Skipped)
	s.Equal("sweep lock unavailable", report.SkipReason)
}

func (s *MonitorSuite) TestOverlappingSweepIsSkipped() {
	s.seedFailures("203.0.113.80", "", 50, time.Minute)

	entered := make(chan struct{})
	release := make(chan struct{})
	s.attempts.BeforeBlock = func(string) {
		close(entered)
		<-release
	}

	done := make(chan SweepReport, 1)
	go func() { done <- s.blocker.RunSweep(s.ctx) }()
	<-entered

	overlapping := s.blocker.RunSweep(s.ctx)
	s.True(overlapping.Skipped)
	s.Equal("sweep already running", overlapping.SkipReason)

	close(release)
	first := <-done
	s.Len(first.Blocked, 1)
}

func (s *MonitorSuite) TestStartRunsSweepsUntilStopped() {
	s.cfg.SweepInterval = 10 * time.Millisecond
	s.build(nil, nil)
	s.seedFailures("203.0.113.90", "", 50, time.Minute)

	s.blocker.Start(s.ctx)
	s.blocker.Start(s.ctx)

	s.Eventually(func() bool {
		blocked, err := s.attempts.HasBlocked(context.Background(), "203.0.113.90")
		return err == nil && blocked
	}, time.Second, 5*time.Millisecond)

	s.blocker.Stop()
	s.blocker.Stop()

	s.Len(s.eventsOfType(model.EventTypeSuspiciousActivity), 1)
}

func (s *MonitorSuite) TestSweepBlocksManyAddressesIndependently() {
	for i := 0; i < 3; i++ {
		s.seedFailures(fmt.Sprintf("198.51.100.%d", 200+i), "", 50+i, time.Minute)
	}

	report := s.blocker.RunSweep(s.ctx)
	s.Require().Len(report.Blocked, 3)
	s.Equal("198.51.100.202", report.Blocked[0].IPAddress, "largest count first")
	s.Len(s.events.All(), 3)
}
