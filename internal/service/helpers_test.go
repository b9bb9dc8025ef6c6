package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/infra/cache"
	"github.com/nordicloop-admin/payout-console/internal/infra/observability"
	"github.com/nordicloop-admin/payout-console/internal/infra/resilience"
	"github.com/nordicloop-admin/payout-console/internal/service"
)

// --- Mocks ---

// fakeAPI is an in-memory payout API. Each GetPendingPayouts call consumes
// the next snapshot in payouts; the last one repeats.
type fakeAPI struct {
	mu sync.Mutex

	payouts    [][]domain.PendingPayout
	payoutsErr error
	stats      *domain.PaymentStats
	statsErr   error

	createFn  func(ctx context.Context, req *domain.CreateSchedulesRequest) (*domain.CreateSchedulesResult, error)
	processFn func(ctx context.Context, req *domain.ProcessPayoutsRequest) (*domain.ProcessPayoutsResult, error)

	pendingCalls int
	statsCalls   int
	createReqs   []*domain.CreateSchedulesRequest
	processReqs  []*domain.ProcessPayoutsRequest
}

func (f *fakeAPI) GetPendingPayouts(_ context.Context) ([]domain.PendingPayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingCalls++
	if f.payoutsErr != nil {
		return nil, f.payoutsErr
	}
	if len(f.payouts) == 0 {
		return nil, nil
	}
	i := f.pendingCalls - 1
	if i >= len(f.payouts) {
		i = len(f.payouts) - 1
	}
	return f.payouts[i], nil
}

func (f *fakeAPI) GetPaymentStats(_ context.Context, since string) (*domain.PaymentStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	if f.stats == nil {
		return &domain.PaymentStats{DateRangeStart: since}, nil
	}
	s := *f.stats
	s.DateRangeStart = since
	return &s, nil
}

func (f *fakeAPI) CreatePayoutSchedules(ctx context.Context, req *domain.CreateSchedulesRequest) (*domain.CreateSchedulesResult, error) {
	f.mu.Lock()
	f.createReqs = append(f.createReqs, req)
	fn := f.createFn
	f.mu.Unlock()
	if fn == nil {
		return acceptAll(ctx, req)
	}
	return fn(ctx, req)
}

func (f *fakeAPI) ProcessPayouts(ctx context.Context, req *domain.ProcessPayoutsRequest) (*domain.ProcessPayoutsResult, error) {
	f.mu.Lock()
	f.processReqs = append(f.processReqs, req)
	fn := f.processFn
	f.mu.Unlock()
	if fn == nil {
		return &domain.ProcessPayoutsResult{Processed: req.ScheduleIDs}, nil
	}
	return fn(ctx, req)
}

func (f *fakeAPI) calls() (pending, create, process int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingCalls, len(f.createReqs), len(f.processReqs)
}

// acceptAll schedules every requested seller with id "sch-<seller>".
func acceptAll(_ context.Context, req *domain.CreateSchedulesRequest) (*domain.CreateSchedulesResult, error) {
	res := &domain.CreateSchedulesResult{}
	for _, id := range req.SellerIDs {
		res.Schedules = append(res.Schedules, domain.PayoutSchedule{
			ID: "sch-" + id, SellerID: id, ScheduledDate: req.ScheduledDate, Status: "scheduled",
		})
	}
	return res, nil
}

// --- Fixtures ---

type tx struct {
	id       string
	amount   string
	currency string
}

func payout(sellerID string, txs ...tx) domain.PendingPayout {
	p := domain.PendingPayout{
		Seller:      domain.Seller{ID: sellerID, Name: "Seller " + sellerID},
		TotalAmount: decimal.Zero,
	}
	created := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	for _, t := range txs {
		cur := t.currency
		if cur == "" {
			cur = "EUR"
		}
		amt := decimal.RequireFromString(t.amount)
		p.Transactions = append(p.Transactions, domain.Transaction{
			ID: t.id, SellerID: sellerID, Amount: amt, Currency: cur, CreatedAt: created,
		})
		p.TotalAmount = p.TotalAmount.Add(amt)
	}
	p.TransactionCount = len(p.Transactions)
	p.OldestAt = created
	return p
}

// baseSnapshot is S1 (T1=100, T2=50) and S2 (T3=200).
func baseSnapshot() []domain.PendingPayout {
	return []domain.PendingPayout{
		payout("S1", tx{id: "T1", amount: "100"}, tx{id: "T2", amount: "50"}),
		payout("S2", tx{id: "T3", amount: "200"}),
	}
}

type harness struct {
	api     *fakeAPI
	deps    service.DashboardDeps
	metrics *observability.Metrics
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	metrics := observability.NewMetrics()

	statsCache := cache.New[*domain.PaymentStats](time.Minute)
	t.Cleanup(statsCache.Close)

	loader := service.NewSnapshotLoader(api, api, statsCache, metrics, logger)
	return &harness{
		api:     api,
		metrics: metrics,
		logs:    logs,
		deps: service.DashboardDeps{
			Loader:          loader,
			Creator:         api,
			Processor:       api,
			Guard:           resilience.NewInFlight(),
			Metrics:         metrics,
			Logger:          logger,
			MutationTimeout: time.Second,
			Location:        time.UTC,
			Clock:           func() time.Time { return time.Date(2024, 6, 30, 23, 30, 0, 0, time.UTC) },
		},
	}
}

func (h *harness) dashboard(t *testing.T) *service.Dashboard {
	t.Helper()
	d := service.NewDashboard("sess-1", "", h.deps)
	if _, err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	return d
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
