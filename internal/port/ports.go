// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/nordicloop-admin/payout-console/internal/domain"
)

// PendingPayoutsFetcher retrieves the sellers with outstanding payable
// transactions as of call time.
type PendingPayoutsFetcher interface {
	GetPendingPayouts(ctx context.Context) ([]domain.PendingPayout, error)
}

// PaymentStatsFetcher retrieves the overview figures. dateRangeStart is
// optional (YYYY-MM-DD).
type PaymentStatsFetcher interface {
	GetPaymentStats(ctx context.Context, dateRangeStart string) (*domain.PaymentStats, error)
}

// ScheduleCreator creates payout schedules. The remote system may accept
// some sellers and reject others; rejections are reported in the result,
// not as an error.
type ScheduleCreator interface {
	CreatePayoutSchedules(ctx context.Context, req *domain.CreateSchedulesRequest) (*domain.CreateSchedulesResult, error)
}

// PayoutProcessor triggers the payment of created schedules.
type PayoutProcessor interface {
	ProcessPayouts(ctx context.Context, req *domain.ProcessPayoutsRequest) (*domain.ProcessPayoutsResult, error)
}

// PayoutAPI is the full remote payout API.
type PayoutAPI interface {
	PendingPayoutsFetcher
	PaymentStatsFetcher
	ScheduleCreator
	PayoutProcessor
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// InFlightGuard holds at most one token per key. TryAcquire never waits:
// ok is false when the key is already held. The returned release func must
// be called exactly once when ok is true.
type InFlightGuard interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}
