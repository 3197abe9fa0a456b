package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
)

func (s *MonitorSuite) seedEvent(t model.EventType, sev model.Severity, age time.Duration) model.SecurityEvent {
	ev := model.SecurityEvent{
		ID:          generateID("sev"),
		Type:        t,
		Severity:    sev,
		Description: string(t),
		IPAddress:   "192.0.2.1",
		CreatedAt:   s.clock.Now().Add(-age),
	}
	s.events.Seed(ev)
	return ev
}

func (s *MonitorSuite) TestSuccessRate() {
	cases := []struct {
		total, failed int
		want          string
	}{
		{0, 0, "0.00"},
		{10, 0, "100.00"},
		{10, 10, "0.00"},
		{3, 1, "66.67"},
		{8, 1, "87.50"},
	}
	for _, tc := range cases {
		s.Equal(tc.want, successRate(tc.total, tc.failed), "%d/%d", tc.total, tc.failed)
	}
}

func (s *MonitorSuite) TestStatsOverWindow() {
	s.seedFailures("192.0.2.1", "a@example.com", 6, time.Hour)
	s.seedFailures("192.0.2.2", "b@example.com", 2, time.Hour)
	s.seedFailures("192.0.2.3", "c@example.com", 4, 8*24*time.Hour)
	s.attempts.Seed(model.LoginAttempt{ID: "la_ok", Email: "a@example.com", IPAddress: "192.0.2.1", Success: true, CreatedAt: s.clock.Now()})
	s.attempts.Seed(model.LoginAttempt{ID: "la_ok2", Email: "b@example.com", IPAddress: "192.0.2.2", Success: true, CreatedAt: s.clock.Now()})

	s.seedEvent(model.EventTypeSuspiciousActivity, model.SeverityCritical, time.Hour)
	s.seedEvent(model.EventTypeSuspiciousActivity, model.SeverityMedium, time.Hour)
	s.seedEvent(model.EventTypeRateLimitExceeded, model.SeverityMedium, time.Hour)
	s.seedEvent(model.EventTypeFailedLogin, model.SeverityCritical, 10*24*time.Hour)

	stats, err := s.review.GetSecurityStats(s.ctx, 0)
	s.Require().NoError(err)

	s.Equal(model.SecurityOverview{
		SecurityEvents: 3,
		LoginAttempts:  10,
		FailedLogins:   8,
		CriticalEvents: 1,
		SuccessRate:    "20.00",
	}, stats.Overview)
	s.Equal([]model.TypeCount{
		{Type: model.EventTypeSuspiciousActivity, Count: 2},
		{Type: model.EventTypeRateLimitExceeded, Count: 1},
	}, stats.TopThreats)
	s.Equal([]model.IPFailureCount{
		{IPAddress: "192.0.2.1", Count: 6},
		{IPAddress: "192.0.2.2", Count: 2},
	}, stats.SuspiciousIPs)

	stats, err = s.review.GetSecurityStats(s.ctx, 30)
	s.Require().NoError(err)
	s.Equal(4, stats.Overview.SecurityEvents)
	s.Equal(14, stats.Overview.LoginAttempts)
}

func (s *MonitorSuite) TestStatsEmpty() {
	stats, err := s.review.GetSecurityStats(s.ctx, 7)
	s.Require().NoError(err)
	s.Equal("0.00", stats.Overview.SuccessRate)
	s.NotNil(stats.TopThreats)
	s.NotNil(stats.SuspiciousIPs)
}

func (s *MonitorSuite) TestStatsLimitsTopLists() {
	for i := 0; i < 12; i++ {
		s.seedFailures(fmt.Sprintf("10.0.0.%d", i), "", i+1, time.Minute)
	}
	stats, err := s.review.GetSecurityStats(s.ctx, 1)
	s.Require().NoError(err)
	s.Len(stats.SuspiciousIPs, 10)
	s.Equal("10.0.0.11", stats.SuspiciousIPs[0].IPAddress)
}

func (s *MonitorSuite) TestStatsStoreFailure() {
	s.events.Set("TopTypesSince", errors.New("query canceled"))
	_, err := s.review.GetSecurityStats(s.ctx, 7)
	s.Error(err)
}

func (s *MonitorSuite) TestResolveOnlyOnce() {
	ev := s.seedEvent(model.EventTypeUnauthorizedAccess, model.SeverityHigh, time.Minute)
	notes := "false positive, office VPN"

	resolved, err := s.review.ResolveSecurityEvent(s.ctx, ev.ID, "usr_admin", &notes)
	s.Require().NoError(err)
	s.True(resolved.Resolved)
	s.Equal("usr_admin", *resolved.ResolvedBy)
	s.Equal(s.clock.Now(), *resolved.ResolvedAt)
	s.Equal(notes, *resolved.Notes)

	s.clock.Advance(time.Hour)
	_, err = s.review.ResolveSecurityEvent(s.ctx, ev.ID, "usr_other", nil)
	s.ErrorIs(err, ErrEventAlreadyResolved)

	stored := s.events.All()[0]
	s.Equal("usr_admin", *stored.ResolvedBy, "first resolution is kept")
	s.Equal(resolved.ResolvedAt.Unix(), stored.ResolvedAt.Unix())
}

func (s *MonitorSuite) TestResolveUnknownEvent() {
	_, err := s.review.ResolveSecurityEvent(s.ctx, "sev_missing", "usr_admin", nil)
	s.ErrorIs(err, ErrEventNotFound)
}

func (s *MonitorSuite) TestListSecurityEventsFiltersAndLimits() {
	for i := 0; i < 3; i++ {
		s.seedEvent(model.EventTypeRateLimitExceeded, model.SeverityMedium, time.Duration(i)*time.Minute)
	}
	s.seedEvent(model.EventTypeUnauthorizedAccess, model.SeverityHigh, 0)

	events, err := s.review.ListSecurityEvents(s.ctx, model.SecurityEventFilter{Severity: model.SeverityMedium}, 2)
	s.Require().NoError(err)
	s.Len(events, 2)
	s.True(events[0].CreatedAt.After(events[1].CreatedAt))

	events, err = s.review.ListSecurityEvents(s.ctx, model.SecurityEventFilter{Type: model.EventTypeUnauthorizedAccess}, 0)
	s.Require().NoError(err)
	s.Len(events, 1)

	_, err = s.review.ListSecurityEvents(s.ctx, model.SecurityEventFilter{Severity: "urgent"}, 0)
	s.ErrorIs(err, ErrInvalidFilter)

	_, err = s.review.ListSecurityEvents(s.ctx, model.SecurityEventFilter{Type: "phishing"}, 0)
	s.ErrorIs(err, ErrInvalidFilter)
}

func (s *MonitorSuite) TestListLoginAttemptsSubstringFilter() {
	s.seedFailures("10.0.0.1", "", 2, time.Minute)
	s.seedFailures("192.168.10.0", "", 1, time.Minute)
	s.seedFailures("172.16.0.5", "", 1, time.Minute)

	attempts, err := s.review.ListLoginAttempts(s.ctx, model.LoginAttemptFilter{IPAddressContains: "10.0"}, 0)
	s.Require().NoError(err)
	s.Len(attempts, 3)

	attempts, err = s.review.ListLoginAttempts(s.ctx, model.LoginAttemptFilter{IPAddressContains: "203."}, 0)
	s.Require().NoError(err)
	s.NotNil(attempts)
	s.Empty(attempts)
}

func (s *MonitorSuite) TestClampLimit() {
	s.Equal(DefaultEventLimit, clampLimit(0, DefaultEventLimit))
	s.Equal(DefaultAttemptLimit, clampLimit(-3, DefaultAttemptLimit))
	s.Equal(25, clampLimit(25, DefaultEventLimit))
	s.Equal(MaxListLimit, clampLimit(10000, DefaultEventLimit))
}

func (s *MonitorSuite) TestManualBlockWithoutHistoryCreatesMarker() {
	result, err := s.review.SetIPBlockState(s.ctx, IPBlockRequest{
		IPAddress: "198.51.100.1",
		Action:    BlockActionBlock,
		Reason:    "scraper",
		Actor:     "usr_admin",
	})
	s.Require().NoError(err)
	s.True(result.MarkerCreated)
	s.Zero(result.AffectedAttempts)

	s.False(s.guard.Check(s.ctx, AccessRequest{IPAddress: "198.51.100.1"}).Allowed)

	result, err = s.review.SetIPBlockState(s.ctx, IPBlockRequest{IPAddress: "198.51.100.1", Action: BlockActionBlock})
	s.Require().NoError(err)
	s.False(result.MarkerCreated, "already blocked addresses get no second marker")
	s.Len(s.attempts.All(), 1)
}

func (s *MonitorSuite) TestManualUnblockRemovesMarkersAndClearsFlags() {
	s.seedFailures("198.51.100.2", "", 3, time.Minute)

	result, err := s.review.SetIPBlockState(s.ctx, IPBlockRequest{IPAddress: "198.51.100.2", Action: BlockActionBlock})
	s.Require().NoError(err)
	s.EqualValues(3, result.AffectedAttempts)
	s.False(result.MarkerCreated)

	result, err = s.review.SetIPBlockState(s.ctx, IPBlockRequest{IPAddress: "198.51.100.2", Action: BlockActionUnblock})
	s.Require().NoError(err)
	s.EqualValues(3, result.AffectedAttempts)
	s.True(s.guard.Check(s.ctx, AccessRequest{IPAddress: "198.51.100.2"}).Allowed)

	s.Require().NoError(s.attempts.InsertBlockMarker(s.ctx, "la_marker", "198.51.100.3", s.clock.Now()))
	_, err = s.review.SetIPBlockState(s.ctx, IPBlockRequest{IPAddress: "198.51.100.3", Action: BlockActionUnblock})
	s.Require().NoError(err)
	for _, row := range s.attempts.All() {
		s.NotEqual("198.51.100.3", row.IPAddress)
	}
}

func (s *MonitorSuite) TestManualBlockNormalizesAddress() {
	result, err := s.review.SetIPBlockState(s.ctx, IPBlockRequest{IPAddress: "2001:DB8:0:0::1", Action: BlockActionBlock})
	s.Require().NoError(err)
	s.Equal("2001:db8::1", result.IPAddress)
}

func (s *MonitorSuite) TestManualBlockRejectsBadInput() {
	_, err := s.review.SetIPBlockState(s.ctx, IPBlockRequest{IPAddress: "not-an-ip", Action: BlockActionBlock})
	s.ErrorIs(err, ErrInvalidIPAddress)

	_, err = s.review.SetIPBlockState(s.ctx, IPBlockRequest{IPAddress: "192.0.2.1", Action: "ban"})
	s.ErrorIs(err, ErrInvalidBlockAction)
	s.Empty(s.attempts.All())
}

func (s *MonitorSuite) TestAuditTrailRecordsAdminChanges() {
	ev := s.seedEvent(model.EventTypeRateLimitExceeded, model.SeverityMedium, time.Minute)
	_, err := s.review.ResolveSecurityEvent(s.ctx, ev.ID, "usr_admin", nil)
	s.Require().NoError(err)

	// a failed second resolve leaves no entry
	_, err = s.review.ResolveSecurityEvent(s.ctx, ev.ID, "usr_admin", nil)
	s.Require().Error(err)

	_, err = s.review.SetIPBlockState(s.ctx, IPBlockRequest{IPAddress: "2001:DB8::7", Action: BlockActionBlock, Reason: "scanner", Actor: "usr_admin"})
	s.Require().NoError(err)
	s.clock.Advance(time.Minute)
	_, err = s.review.SetIPBlockState(s.ctx, IPBlockRequest{IPAddress: "2001:db8::7", Action: BlockActionUnblock, Actor: "usr_other"})
	s.Require().NoError(err)

	entries := s.audit.All()
	s.Require().Len(entries, 3)
	s.Equal(model.AuditActionResolveEvent, entries[0].Action)
	s.Equal(ev.ID, *entries[0].ResourceID)
	s.Equal("usr_admin", *entries[0].UserID)

	trail, err := s.review.AuditTrail(s.ctx, model.AuditResourceIPAddress, "2001:0db8::7", 0)
	s.Require().NoError(err)
	s.Require().Len(trail, 2)
	s.Equal(model.AuditActionUnblockIP, trail[0].Action, "newest first")
	s.Equal("usr_other", *trail[0].UserID)
	s.Equal(model.AuditActionBlockIP, trail[1].Action)
	s.Equal("scanner", trail[1].Metadata["reason"])
}

func (s *MonitorSuite) TestAuditFailureDoesNotUndoChange() {
	s.audit.Set("Create", errors.New("audit table missing"))

	result, err := s.review.SetIPBlockState(s.ctx, IPBlockRequest{IPAddress: "192.0.2.30", Action: BlockActionBlock})
	s.Require().NoError(err)
	s.True(result.MarkerCreated)
	s.False(s.guard.Check(s.ctx, AccessRequest{IPAddress: "192.0.2.30"}).Allowed)
	s.Empty(s.audit.All())
}

func (s *MonitorSuite) TestAuditTrailRejectsBadInput() {
	_, err := s.review.AuditTrail(s.ctx, "user", "usr_1", 0)
	s.ErrorIs(err, ErrInvalidFilter)

	_, err = s.review.AuditTrail(s.ctx, model.AuditResourceIPAddress, "nope", 0)
	s.ErrorIs(err, ErrInvalidIPAddress)

	s.audit.Set("ListByResource", errors.New("boom"))
	_, err = s.review.AuditTrail(s.ctx, model.AuditResourceSecurityEvent, "sev_1", 0)
	s.Error(err)
}
