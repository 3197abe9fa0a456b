package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

func (s *MonitorSuite) TestGuardAllowsUnknownAddress() {
	decision := s.guard.Check(s.ctx, AccessRequest{IPAddress: "192.0.2.1", Path: "/api/products", Method: http.MethodGet})
	s.True(decision.Allowed)
	s.Nil(decision.Event)
	s.Empty(s.events.All())
}

func (s *MonitorSuite) TestGuardDeniesBlockedAddress() {
	s.attempts.Seed(model.LoginAttempt{ID: "la_1", IPAddress: "192.0.2.2", Blocked: true, CreatedAt: s.clock.Now()})

	decision := s.guard.Check(s.ctx, AccessRequest{
		IPAddress: "192.0.2.2",
		Path:      "/api/products",
		Method:    http.MethodGet,
		UserAgent: "curl/8.0",
	})
	s.False(decision.Allowed)
	s.Equal(http.StatusForbidden, decision.Status)
	s.Equal(BlockedMessage, decision.Message)
	s.Require().NotNil(decision.Event)
	s.Equal(model.EventTypeUnauthorizedAccess, decision.Event.Type)
	s.Equal(model.SeverityHigh, decision.Event.Severity)
	s.Equal("Blocked IP attempted access: 192.0.2.2", decision.Event.Description)
	s.Equal("/api/products", *decision.Event.Endpoint)
	s.Equal("curl/8.0", *decision.Event.UserAgent)
}

func (s *MonitorSuite) TestGuardFailsOpen() {
	s.attempts.Seed(model.LoginAttempt{ID: "la_1", IPAddress: "192.0.2.3", Blocked: true, CreatedAt: s.clock.Now()})
	s.attempts.Set("HasBlocked", errors.New("connection refused"))

	decision := s.guard.Check(s.ctx, AccessRequest{IPAddress: "192.0.2.3", Path: "/", Method: http.MethodGet})
	s.True(decision.Allowed)
	s.Empty(s.events.All())
}

func (s *MonitorSuite) TestGuardDeniesEvenWhenEventFails() {
	s.attempts.Seed(model.LoginAttempt{ID: "la_1", IPAddress: "192.0.2.4", Blocked: true, CreatedAt: s.clock.Now()})
	s.events.Set("Create", errors.New("event store down"))

	decision := s.guard.Check(s.ctx, AccessRequest{IPAddress: "192.0.2.4", Path: "/", Method: http.MethodGet})
	s.False(decision.Allowed)
	s.Nil(decision.Event)
}

type mapCache struct {
	state  map[string]bool
	getErr error
	sets   int
}

func (c *mapCache) Get(_ context.Context, ip string) (bool, bool, error) {
	if c.getErr != nil {
		return false, false, c.getErr
	}
	blocked, ok := c.state[ip]
	return blocked, ok, nil
}

func (c *mapCache) Set(_ context.Context, ip string, blocked bool) error {
	c.sets++
	c.state[ip] = blocked
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, ips ...string) error {
	for _, ip := range ips {
		delete(c.state, ip)
	}
	return nil
}

func (s *MonitorSuite) TestGuardUsesCacheBeforeStore() {
	cache := &mapCache{state: map[string]bool{"192.0.2.5": true}}
	guard := NewAccessGuard(s.attempts, cache, s.raiser, nil, logger.Nop())
	s.attempts.Set("HasBlocked", errors.New("must not be called"))

	decision := guard.Check(s.ctx, AccessRequest{IPAddress: "192.0.2.5"})
	s.False(decision.Allowed)
	s.Zero(cache.sets)
}

func (s *MonitorSuite) TestGuardFillsCacheOnMiss() {
	cache := &mapCache{state: map[string]bool{}}
	guard := NewAccessGuard(s.attempts, cache, s.raiser, nil, logger.Nop())

	s.True(guard.Check(s.ctx, AccessRequest{IPAddress: "192.0.2.6"}).Allowed)
	s.Equal(1, cache.sets)
	blocked, found := cache.state["192.0.2.6"]
	s.True(found)
	s.False(blocked)
}

func (s *MonitorSuite) TestGuardFallsBackToStoreWhenCacheFails() {
	cache := &mapCache{state: map[string]bool{}, getErr: errors.New("redis down")}
	guard := NewAccessGuard(s.attempts, cache, s.raiser, nil, logger.Nop())
	s.attempts.Seed(model.LoginAttempt{ID: "la_1", IPAddress: "192.0.2.7", Blocked: true, CreatedAt: s.clock.Now()})

	s.False(guard.Check(s.ctx, AccessRequest{IPAddress: "192.0.2.7"}).Allowed)
}

func (s *MonitorSuite) TestSweepInvalidatesCache() {
	cache := &mapCache{state: map[string]bool{"203.0.113.9": false}}
	s.blocker = NewAutoBlocker(s.attempts, s.raiser, cache, nil, s.cfg, nil, logger.Nop())
	s.blocker.now = s.clock.Now
	guard := NewAccessGuard(s.attempts, cache, s.raiser, nil, logger.Nop())

	s.seedFailures("203.0.113.9", "", 50, time.Minute)
	s.True(guard.Check(s.ctx, AccessRequest{IPAddress: "203.0.113.9"}).Allowed, "cached as unblocked")

	s.blocker.RunSweep(s.ctx)
	s.False(guard.Check(s.ctx, AccessRequest{IPAddress: "203.0.113.9"}).Allowed)
}

func (s *MonitorSuite) TestBruteForceIsBlockedEndToEnd() {
	ip := "203.0.113.9"
	for i := 0; i < 50; i++ {
		s.clock.Advance(time.Second)
		res := s.recorder.RecordAttempt(s.ctx, AttemptInput{
			Email:         "admin@example.com",
			IPAddress:     ip,
			FailureReason: model.FailureReasonInvalidPassword,
		})
		s.Require().NoError(res.Err)
	}

	report := s.blocker.RunSweep(s.ctx)
	s.Require().Len(report.Blocked, 1)
	s.Equal(50, report.Blocked[0].Count)

	for _, row := range s.attempts.All() {
		s.True(row.Blocked)
	}

	var autoBlocked *model.SecurityEvent
	for _, ev := range s.events.All() {
		if ev.Severity == model.SeverityCritical {
			autoBlocked = &ev
		}
	}
	s.Require().NotNil(autoBlocked)
	s.Equal(50, autoBlocked.Metadata["failedAttempts"])

	decision := s.guard.Check(s.ctx, AccessRequest{IPAddress: ip, Path: "/api/products", Method: http.MethodGet})
	s.False(decision.Allowed)
	s.Equal(http.StatusForbidden, decision.Status)
	s.Require().NotNil(decision.Event)
	s.Equal(model.SeverityHigh, decision.Event.Severity)
	s.Equal(model.EventTypeUnauthorizedAccess, decision.Event.Type)
}
