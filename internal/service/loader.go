package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/infra/observability"
	"github.com/nordicloop-admin/payout-console/internal/port"
)

var tracer = otel.Tracer("service/payouts")

const dateLayout = "2006-01-02"

// SnapshotLoader fetches pending payouts and payment stats. It keeps no
// state besides the stats cache.
type SnapshotLoader struct {
	payouts port.PendingPayoutsFetcher
	stats   port.PaymentStatsFetcher
	cache   port.Cache[*domain.PaymentStats]
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewSnapshotLoader creates the loader with all dependencies injected.
func NewSnapshotLoader(
	payouts port.PendingPayoutsFetcher,
	stats port.PaymentStatsFetcher,
	cache port.Cache[*domain.PaymentStats],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SnapshotLoader {
	return &SnapshotLoader{
		payouts: payouts,
		stats:   stats,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Load fetches pending payouts and stats concurrently. A stats failure
// only degrades the snapshot (Stats is nil); a payouts failure fails the load.
func (l *SnapshotLoader) Load(ctx context.Context, statsSince string) (*domain.Snapshot, error) {
	if err := validateDate("date_range_start", statsSince, false); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "SnapshotLoader.Load")
	defer span.End()

	fetchedAt := l.now()
	start := time.Now()
	defer func() {
		l.metrics.RecordDuration("load", time.Since(start))
	}()

	var (
		payouts []domain.PendingPayout
		stats   *domain.PaymentStats
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := l.payouts.GetPendingPayouts(gCtx)
		if err != nil {
			l.logger.Error("failed to fetch pending payouts", zap.Error(err))
			l.metrics.IncrExternalError("load")
			return fmt.Errorf("pending payouts fetch: %w", err)
		}
		payouts = p
		return nil
	})

	g.Go(func() error {
		s, err := l.Stats(gCtx, statsSince)
		if err != nil {
			// display-only
			l.logger.Warn("payment stats unavailable, continuing without them",
				zap.String("date_range_start", statsSince),
				zap.Error(err),
			)
			return nil
		}
		stats = s
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("payouts.sellers", len(payouts)),
		attribute.Bool("payouts.stats_available", stats != nil),
	)

	return &domain.Snapshot{
		Payouts:   payouts,
		Stats:     stats,
		FetchedAt: fetchedAt,
	}, nil
}

// Stats returns payment stats, served from cache when fresh.
func (l *SnapshotLoader) Stats(ctx context.Context, since string) (*domain.PaymentStats, error) {
	if err := validateDate("date_range_start", since, false); err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("stats:%s", since)
	if s, ok := l.cache.Get(cacheKey); ok {
		l.metrics.IncrCacheHit("stats")
		return s, nil
	}
	l.metrics.IncrCacheMiss("stats")

	s, err := l.stats.GetPaymentStats(ctx, since)
	if err != nil {
		l.metrics.IncrExternalError("stats")
		return nil, fmt.Errorf("payment stats fetch: %w", err)
	}
	l.cache.Set(cacheKey, s)
	return s, nil
}

func validateDate(field, value string, required bool) error {
	if value == "" {
		if required {
			return &domain.ErrValidation{Field: field, Message: "is required"}
		}
		return nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return &domain.ErrValidation{Field: field, Message: fmt.Sprintf("%q is not a valid YYYY-MM-DD date", value)}
	}
	return nil
}
