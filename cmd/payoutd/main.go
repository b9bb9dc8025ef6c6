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

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/config"
	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/handler"
	"github.com/nordicloop-admin/payout-console/internal/infra/cache"
	"github.com/nordicloop-admin/payout-console/internal/infra/client"
	"github.com/nordicloop-admin/payout-console/internal/infra/lock"
	"github.com/nordicloop-admin/payout-console/internal/infra/observability"
	"github.com/nordicloop-admin/payout-console/internal/infra/resilience"
	"github.com/nordicloop-admin/payout-console/internal/port"
	"github.com/nordicloop-admin/payout-console/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("payment_api_url", cfg.PaymentAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("mutation_timeout", cfg.MutationTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("session_ttl", cfg.SessionTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.String("payout_timezone", cfg.PayoutTimezone),
		zap.Bool("shared_inflight_guard", cfg.RedisURL != ""),
	)
	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.PaymentAPIToken == "" {
		logger.Warn("PAYMENT_API_TOKEN is empty; payout API calls will be unauthenticated")
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "payout-console")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	statsCache := cache.New[*domain.PaymentStats](cfg.CacheTTL)
	defer statsCache.Close()
	sessions := cache.New[*service.Dashboard](cfg.SessionTTL)
	defer sessions.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("payout-api", logger)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	payoutAPI := client.NewPayoutClient(httpClient, cfg.PaymentAPIURL, cfg.PaymentAPIToken, cb, resilienceCfg)

	checks := []handler.HealthCheck{{
		Name: "payout-api",
		Check: func(context.Context) error {
			if cb.State() == gobreaker.StateOpen {
				return errors.New("circuit open")
			}
			return nil
		},
	}}

	// --- In-flight guard ---
	var guard port.InFlightGuard
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := lock.NewClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		guard = lock.NewRedisGuard(rdb, lock.DefaultPrefix, cfg.InFlightTTL, logger)
		checks = append(checks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Info("in-flight guard backed by redis")
	} else {
		guard = resilience.NewInFlight()
		logger.Warn("in-flight guard is process-local; run a single replica or set REDIS_URL")
	}

	// --- Services ---
	registry := service.NewRegistry(service.DashboardDeps{
		Loader:          service.NewSnapshotLoader(payoutAPI, payoutAPI, statsCache, metrics, logger),
		Creator:         payoutAPI,
		Processor:       payoutAPI,
		Guard:           guard,
		Metrics:         metrics,
		Logger:          logger,
		MutationTimeout: cfg.MutationTimeout,
		Location:        cfg.Location(),
	}, sessions, logger)

	auth := service.NewAdminAuth(cfg.JWTSecret)

	// --- Router ---
	router := handler.NewRouter(handler.RouterDeps{
		Registry:     registry,
		Auth:         auth,
		Metrics:      metrics,
		Logger:       logger,
		CORSOrigins:  cfg.CORSAllowedOrigins,
		HealthChecks: checks,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.MutationTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.MutationTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
