package service

import (
	"errors"
	"net/http"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

func (s *MonitorSuite) outcome(status int, took time.Duration) RequestOutcome {
	return RequestOutcome{
		Method:       http.MethodGet,
		Path:         "/api/products",
		IPAddress:    "192.0.2.10",
		UserAgent:    "test-agent",
		StatusCode:   status,
		ResponseTime: took,
	}
}

func (s *MonitorSuite) TestRateLimitedRequestRaisesMediumEvent() {
	res := s.monitor.OnRequestComplete(s.ctx, s.outcome(http.StatusTooManyRequests, 20*time.Millisecond))
	s.NoError(res.Err)
	s.Require().Len(res.Events, 1)

	ev := res.Events[0]
	s.Equal(model.EventTypeRateLimitExceeded, ev.Type)
	s.Equal(model.SeverityMedium, ev.Severity)
	s.Equal("Rate limit exceeded for GET /api/products", ev.Description)
	s.Equal(http.StatusTooManyRequests, *ev.StatusCode)
	s.Equal(int64(20), ev.Metadata["responseTime"])
}

func (s *MonitorSuite) TestUnauthorizedAndForbiddenRaiseMediumEvent() {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		res := s.monitor.OnRequestComplete(s.ctx, s.outcome(status, time.Millisecond))
		s.Require().Len(res.Events, 1, "status %d", status)
		s.Equal(model.EventTypeUnauthorizedAccess, res.Events[0].Type)
		s.Equal(model.SeverityMedium, res.Events[0].Severity)
		s.Equal("Unauthorized access attempt to GET /api/products", res.Events[0].Description)
	}
}

func (s *MonitorSuite) TestSlowResponseThresholdIsExclusive() {
	res := s.monitor.OnRequestComplete(s.ctx, s.outcome(http.StatusOK, 10*time.Second))
	s.Empty(res.Events)

	res = s.monitor.OnRequestComplete(s.ctx, s.outcome(http.StatusOK, 10001*time.Millisecond))
	s.Require().Len(res.Events, 1)
	s.Equal(model.SeverityLow, res.Events[0].Severity)
	s.Equal(model.EventTypeSuspiciousActivity, res.Events[0].Type)
	s.Equal("Unusually slow response time: 10001ms for GET /api/products", res.Events[0].Description)
}

func (s *MonitorSuite) TestRulesApplyIndependently() {
	res := s.monitor.OnRequestComplete(s.ctx, s.outcome(http.StatusForbidden, 12*time.Second))
	s.Require().Len(res.Events, 2)
	s.Equal(model.EventTypeUnauthorizedAccess, res.Events[0].Type)
	s.Equal(model.EventTypeSuspiciousActivity, res.Events[1].Type)
}

func (s *MonitorSuite) TestOrdinaryRequestRaisesNothing() {
	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError} {
		res := s.monitor.OnRequestComplete(s.ctx, s.outcome(status, time.Second))
		s.Empty(res.Events)
	}
	s.Empty(s.events.All())
}

func (s *MonitorSuite) TestMonitorStoreFailureIsSwallowed() {
	s.events.Set("Create", errors.New("event store down"))
	res := s.monitor.OnRequestComplete(s.ctx, s.outcome(http.StatusTooManyRequests, time.Millisecond))
	s.Error(res.Err)
	s.Empty(res.Events)
}

func (s *MonitorSuite) TestObserveWithInlineDispatch() {
	s.monitor.Observe(s.ctx, s.outcome(http.StatusUnauthorized, time.Millisecond))
	s.Len(s.eventsOfType(model.EventTypeUnauthorizedAccess), 1)
}
