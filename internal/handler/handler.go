package handler

import (
	"context"
	"time"

	"github.com/riskianand4/internet-stock-tracker-84/internal/config"
	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/service"
)

// HealthChecker reports whether a backing store is reachable.
// Implemented by database.Postgres and database.Redis.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler holds all HTTP handlers
type Handler struct {
	db        HealthChecker
	rdb       HealthChecker
	log       *logger.Logger
	cfg       *config.Config
	authSvc   *service.AuthService
	reviewSvc *service.SecurityReviewService
	blocker   *service.AutoBlocker
	startedAt time.Time
}

// New creates a new Handler instance
func New(
	db HealthChecker,
	rdb HealthChecker,
	log *logger.Logger,
	cfg *config.Config,
	authSvc *service.AuthService,
	reviewSvc *service.SecurityReviewService,
	blocker *service.AutoBlocker,
) *Handler {
	return &Handler{
		db:        db,
		rdb:       rdb,
		log:       log.WithComponent("handler"),
		cfg:       cfg,
		authSvc:   authSvc,
		reviewSvc: reviewSvc,
		blocker:   blocker,
		startedAt: time.Now(),
	}
}
