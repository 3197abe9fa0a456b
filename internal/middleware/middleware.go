package middleware

import (
	"github.com/riskianand4/internet-stock-tracker-84/internal/config"
	"github.com/riskianand4/internet-stock-tracker-84/internal/database"
	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/metrics"
)

// Middleware holds all HTTP middleware
type Middleware struct {
	rdb     *database.Redis
	log     *logger.Logger
	cfg     *config.Config
	metrics *metrics.Metrics
}

// New creates a new Middleware instance. m may be nil.
func New(rdb *database.Redis, log *logger.Logger, cfg *config.Config, m *metrics.Metrics) *Middleware {
	return &Middleware{
		rdb:     rdb,
		log:     log,
		cfg:     cfg,
		metrics: m,
	}
}
