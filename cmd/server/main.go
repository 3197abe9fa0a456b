package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/riskianand4/internet-stock-tracker-84/internal/auth"
	"github.com/riskianand4/internet-stock-tracker-84/internal/cache"
	"github.com/riskianand4/internet-stock-tracker-84/internal/config"
	"github.com/riskianand4/internet-stock-tracker-84/internal/database"
	"github.com/riskianand4/internet-stock-tracker-84/internal/email"
	"github.com/riskianand4/internet-stock-tracker-84/internal/handler"
	"github.com/riskianand4/internet-stock-tracker-84/internal/logger"
	"github.com/riskianand4/internet-stock-tracker-84/internal/metrics"
	"github.com/riskianand4/internet-stock-tracker-84/internal/middleware"
	"github.com/riskianand4/internet-stock-tracker-84/internal/model"
	"github.com/riskianand4/internet-stock-tracker-84/internal/repository"
	"github.com/riskianand4/internet-stock-tracker-84/internal/router"
	"github.com/riskianand4/internet-stock-tracker-84/internal/service"
	"github.com/riskianand4/internet-stock-tracker-84/internal/stream"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", cfg.Server.Version).Msg("starting security monitor")

	if cfg.Security.Tokens.Secret == "" {
		log.Warn().Msg("security.tokens.secret is empty, login and admin routes will reject every token")
	}

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Connect to Redis
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("connected to Redis")

	// Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	attemptRepo := repository.NewLoginAttemptRepository(db)
	eventRepo := repository.NewSecurityEventRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Event publishers
	publishers := []service.EventPublisher{service.NewRedisEventPublisher(rdb)}

	if cfg.Kafka.Enabled {
		kafkaPub := stream.NewKafkaPublisher(cfg.Kafka, log)
		defer kafkaPub.Close()
		publishers = append(publishers, kafkaPub)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publishing enabled")
	}

	if cfg.Alerts.Email.Enabled {
		sender, err := email.NewGmailSenderFromConfig(context.Background(), cfg.Alerts.Email.Gmail)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize email alerts")
		}
		publishers = append(publishers, service.NewEmailAlerter(
			sender,
			cfg.Alerts.Email.Recipients,
			model.Severity(cfg.Alerts.Email.MinSeverity),
			cfg.Alerts.Email.AppName,
			log,
		))
		log.Info().Int("recipients", len(cfg.Alerts.Email.Recipients)).Msg("email alerts enabled")
	}

	// Monitoring services
	dispatcher := service.NewDispatcher(cfg.Monitor.WriteTimeout)
	blockCache := cache.NewBlockCache(rdb, cfg.Monitor.BlockCacheTTL)

	raiser := service.NewEventRaiser(eventRepo, publishers, dispatcher, m, log)
	detector := service.NewAnomalyDetector(attemptRepo, raiser,
		cache.NewSuppressor(rdb, cfg.Monitor.FailureWindow), cfg.Monitor, m, log)
	recorder := service.NewAttemptRecorder(attemptRepo, detector, m, log)
	requestMonitor := service.NewRequestMonitor(raiser, dispatcher, cfg.Monitor.SlowResponseThreshold, m, log)
	guard := service.NewAccessGuard(attemptRepo, blockCache, raiser, m, log)
	blocker := service.NewAutoBlocker(attemptRepo, raiser, blockCache,
		cache.NewLock(rdb, "autoblock_sweep", cfg.Monitor.SweepLockTTL), cfg.Monitor, m, log)
	reviewSvc := service.NewSecurityReviewService(attemptRepo, eventRepo, auditRepo, blockCache, m, log)

	tokenSvc := auth.NewTokenService(cfg.Security.Tokens)
	authSvc := service.NewAuthService(userRepo, recorder, tokenSvc, dispatcher, log)

	// Initialize handlers
	h := handler.New(db, rdb, log, cfg, authSvc, reviewSvc, blocker)

	// Initialize middleware
	mw := middleware.New(rdb, log, cfg, m)

	// Set up router
	r := router.New(h, mw, cfg, tokenSvc, router.Monitoring{
		Guard:    guard,
		Observer: requestMonitor,
		Metrics:  m,
	})

	// Start the auto-blocker schedule
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	blocker.Start(ctx)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Bool("tls", cfg.Server.TLS.Enabled).Msg("HTTP server listening")
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	blocker.Stop()

	// Let in-flight monitoring writes reach the database
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("gave up waiting for monitoring writes")
	}

	log.Info().Msg("server stopped")
}
