package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/riskianand4/internet-stock-tracker-84/internal/auth"
	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
	"github.com/riskianand4/internet-stock-tracker-84/internal/repository"
)

// Login errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountNotActive   = errors.New("account is not active")
)

// LoginRequest contains the data for a login attempt
type LoginRequest struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResponse is returned on a successful login
type LoginResponse struct {
	*auth.AccessToken
	User *model.User `json:"user"`
}

// AuthService verifies credentials and feeds every attempt to the recorder
type AuthService struct {
	users      UserStore
	recorder   *AttemptRecorder
	tokens     *auth.TokenService
	dispatcher *Dispatcher
	log        *logger.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(users UserStore, recorder *AttemptRecorder, tokens *auth.TokenService, dispatcher *Dispatcher, log *logger.Logger) *AuthService {
	return &AuthService{
		users:      users,
		recorder:   recorder,
		tokens:     tokens,
		dispatcher: dispatcher,
		log:        log.WithComponent("auth_service"),
	}
}

// Login checks the password and issues an access token. The attempt is
// recorded in the background whatever the outcome.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email, err := auth.NormalizeEmail(req.Email)
	if err != nil {
		// still recorded so malformed credential stuffing is counted
		email = req.Email
	}

	attempt := AttemptInput{
		Email:     email,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		attempt.FailureReason = model.FailureReasonUserNotFound
		s.record(ctx, attempt)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	attempt.UserID = user.ID

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash is unreadable")
	}
	if !ok {
		attempt.FailureReason = model.FailureReasonInvalidPassword
		s.record(ctx, attempt)
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive() {
		attempt.FailureReason = model.FailureReasonAccountInactive
		s.record(ctx, attempt)
		return nil, ErrAccountNotActive
	}

	token, err := s.tokens.Issue(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	attempt.Success = true
	s.record(ctx, attempt)

	s.log.Info().Str("user_id", user.ID).Str("ip_address", req.IPAddress).Msg("user logged in")

	return &LoginResponse{AccessToken: token, User: user}, nil
}

func (s *AuthService) record(ctx context.Context, in AttemptInput) {
	s.dispatcher.Go(ctx, func(ctx context.Context) {
		s.recorder.RecordAttempt(ctx, in)
	})
}
