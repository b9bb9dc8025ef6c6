package commands

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/config"
	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/infra/cache"
	"github.com/nordicloop-admin/payout-console/internal/infra/client"
	"github.com/nordicloop-admin/payout-console/internal/infra/lock"
	"github.com/nordicloop-admin/payout-console/internal/infra/observability"
	"github.com/nordicloop-admin/payout-console/internal/infra/resilience"
	"github.com/nordicloop-admin/payout-console/internal/port"
	"github.com/nordicloop-admin/payout-console/internal/service"
)

// app holds the collaborators a command run needs.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	deps       service.DashboardDeps
	statsCache *cache.InMemory[*domain.PaymentStats]
	redis      *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	metrics := observability.NewMetrics()
	statsCache := cache.New[*domain.PaymentStats](cfg.CacheTTL)

	api := client.NewPayoutClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		cfg.PaymentAPIURL,
		cfg.PaymentAPIToken,
		resilience.NewCircuitBreaker("payout-api", logger),
		resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxConcurrency: cfg.MaxConcurrency,
		},
	)

	a := &app{cfg: cfg, logger: logger, statsCache: statsCache}

	var guard port.InFlightGuard = resilience.NewInFlight()
	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rdb, err := lock.NewClient(pingCtx, cfg.RedisURL)
		if err != nil {
			statsCache.Close()
			return nil, err
		}
		a.redis = rdb
		guard = lock.NewRedisGuard(rdb, lock.DefaultPrefix, cfg.InFlightTTL, logger)
	}

	a.deps = service.DashboardDeps{
		Loader:          service.NewSnapshotLoader(api, api, statsCache, metrics, logger),
		Creator:         api,
		Processor:       api,
		Guard:           guard,
		Metrics:         metrics,
		Logger:          logger,
		MutationTimeout: cfg.MutationTimeout,
		Location:        cfg.Location(),
	}
	return a, nil
}

// dashboard opens a fresh, loaded session for one command run.
func (a *app) dashboard(ctx context.Context, statsSince string) (*service.Dashboard, error) {
	d := service.NewDashboard("cli", statsSince, a.deps)
	if _, err := d.Refresh(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (a *app) close() {
	a.statsCache.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis client", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
