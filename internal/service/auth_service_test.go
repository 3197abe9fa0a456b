package service

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/riskianand4/internet-stock-tracker-84/internal/auth"
	"github.com/riskianand4/internet-stock-tracker-84/internal/config"
	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
	"github.com/riskianand4/internet-stock-tracker-84/internal/service/servicetest"
)

var testHashParams = &auth.Argon2Params{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func (s *MonitorSuite) newAuthService(users ...*model.User) *AuthService {
	tokens := auth.NewTokenService(config.TokenConfig{
		Secret:         "test-secret-with-enough-entropy",
		Issuer:         "secmon-test",
		AccessTokenTTL: 15 * time.Minute,
	})
	return NewAuthService(servicetest.NewUserStore(users...), s.recorder, tokens, nil, logger.Nop())
}

func (s *MonitorSuite) testUser(status model.UserStatus) *model.User {
	hash, err := auth.HashPassword("correct horse battery", testHashParams)
	s.Require().NoError(err)
	return &model.User{
		ID:           "usr_1",
		Email:        "owner@example.com",
		Name:         "Owner",
		PasswordHash: hash,
		Role:         model.RoleSuperAdmin,
		Status:       status,
	}
}

func (s *MonitorSuite) lastAttempt() model.LoginAttempt {
	rows := s.attempts.All()
	s.Require().NotEmpty(rows)
	return rows[len(rows)-1]
}

func (s *MonitorSuite) TestLoginSuccessRecordsAttempt() {
	svc := s.newAuthService(s.testUser(model.UserStatusActive))

	resp, err := svc.Login(s.ctx, LoginRequest{
		Email:     "  Owner@Example.com ",
		Password:  "correct horse battery",
		IPAddress: "192.0.2.50",
		UserAgent: "Mozilla/5.0",
	})
	s.Require().NoError(err)
	s.Equal("Bearer", resp.TokenType)
	s.NotEmpty(resp.AccessToken.AccessToken)
	s.Equal("usr_1", resp.User.ID)

	attempt := s.lastAttempt()
	s.True(attempt.Success)
	s.Equal("owner@example.com", attempt.Email)
	s.Equal("usr_1", *attempt.UserID)
	s.Equal("Mozilla/5.0", *attempt.UserAgent)
	s.Nil(attempt.FailureReason)
}

func (s *MonitorSuite) TestLoginWrongPassword() {
	svc := s.newAuthService(s.testUser(model.UserStatusActive))

	_, err := svc.Login(s.ctx, LoginRequest{Email: "owner@example.com", Password: "wrong", IPAddress: "192.0.2.51"})
	s.ErrorIs(err, ErrInvalidCredentials)

	attempt := s.lastAttempt()
	s.False(attempt.Success)
	s.Equal(model.FailureReasonInvalidPassword, *attempt.FailureReason)
	s.Equal("usr_1", *attempt.UserID)
}

func (s *MonitorSuite) TestLoginUnknownUser() {
	svc := s.newAuthService()

	_, err := svc.Login(s.ctx, LoginRequest{Email: "ghost@example.com", Password: "whatever", IPAddress: "192.0.2.52"})
	s.ErrorIs(err, ErrInvalidCredentials)

	attempt := s.lastAttempt()
	s.Equal(model.FailureReasonUserNotFound, *attempt.FailureReason)
	s.Nil(attempt.UserID)
}

func (s *MonitorSuite) TestLoginInactiveAccount() {
	svc := s.newAuthService(s.testUser(model.UserStatusDisabled))

	_, err := svc.Login(s.ctx, LoginRequest{Email: "owner@example.com", Password: "correct horse battery", IPAddress: "192.0.2.53"})
	s.ErrorIs(err, ErrAccountNotActive)
	s.Equal(model.FailureReasonAccountInactive, *s.lastAttempt().FailureReason)
}

func (s *MonitorSuite) TestRepeatedLoginFailuresRaiseEvents() {
	svc := s.newAuthService(s.testUser(model.UserStatusActive))

	for i := 0; i < 5; i++ {
		_, err := svc.Login(s.ctx, LoginRequest{Email: "owner@example.com", Password: "guess", IPAddress: "192.0.2.54"})
		s.ErrorIs(err, ErrInvalidCredentials)
	}

	events := s.eventsOfType(model.EventTypeSuspiciousActivity)
	s.Require().Len(events, 1)
	s.Equal("owner@example.com", events[0].Metadata["email"])
}

func (s *MonitorSuite) TestLoginOversizedEmailIsStillCounted() {
	svc := s.newAuthService()
	long := strings.Repeat("é", 300) + "@example.com"

	for i := 0; i < 5; i++ {
		_, err := svc.Login(s.ctx, LoginRequest{Email: long, Password: "guess", IPAddress: "192.0.2.56"})
		s.ErrorIs(err, ErrInvalidCredentials)
	}

	all := s.attempts.All()
	s.Require().Len(all, 5)
	s.Equal(255, utf8.RuneCountInString(all[0].Email))
	s.Len(s.eventsOfType(model.EventTypeSuspiciousActivity), 1, "the email rule sees the truncated address")
}

func (s *MonitorSuite) TestTruncateRunes() {
	s.Equal("abc", truncateRunes("abc", 5))
	s.Equal("éé", truncateRunes("ééé", 2))
	s.Equal("", truncateRunes("x", 0))
}

func (s *MonitorSuite) TestLoginSucceedsWhenRecordingFails() {
	svc := s.newAuthService(s.testUser(model.UserStatusActive))
	s.attempts.Set("Create", assertErr)

	_, err := svc.Login(s.ctx, LoginRequest{Email: "owner@example.com", Password: "correct horse battery", IPAddress: "192.0.2.55"})
	s.NoError(err)
}
