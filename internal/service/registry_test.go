package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/infra/cache"
	"github.com/nordicloop-admin/payout-console/internal/service"
)

func newRegistry(t *testing.T, api *fakeAPI, ttl time.Duration) *service.Registry {
	t.Helper()
	h := newHarness(t, api)
	store := cache.New[*service.Dashboard](ttl)
	t.Cleanup(store.Close)
	return service.NewRegistry(h.deps, store, zap.NewNop())
}

func TestRegistry_OpenGetClose(t *testing.T) {
	api := &fakeAPI{payouts: [][]domain.PendingPayout{baseSnapshot()}}
	reg := newRegistry(t, api, time.Minute)

	view, err := reg.Open(context.Background(), "2024-01-01")
	require.NoError(t, err)
	require.NotEmpty(t, view.SessionID)
	assert.Len(t, view.Snapshot.Payouts, 2)
	require.NotNil(t, view.Snapshot.Stats)
	assert.Equal(t, "2024-01-01", view.Snapshot.Stats.DateRangeStart)

	d, err := reg.Get(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, view.SessionID, d.ID())

	require.NoError(t, reg.Close(view.SessionID))
	_, err = reg.Get(view.SessionID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
	assert.ErrorAs(t, reg.Close(view.SessionID), &nf)
}

func TestRegistry_SessionsAreIndependent(t *testing.T) {
	api := &fakeAPI{payouts: [][]domain.PendingPayout{baseSnapshot()}}
	reg := newRegistry(t, api, time.Minute)
	ctx := context.Background()

	a, err := reg.Open(ctx, "")
	require.NoError(t, err)
	b, err := reg.Open(ctx, "")
	require.NoError(t, err)
	require.NotEqual(t, a.SessionID, b.SessionID)

	da, _ := reg.Get(a.SessionID)
	db, _ := reg.Get(b.SessionID)
	da.SelectAll()

	assert.Len(t, da.View().Selection, 2)
	assert.Empty(t, db.View().Selection)
}

func TestRegistry_OpenFailsWhenPayoutsUnavailable(t *testing.T) {
	api := &fakeAPI{payoutsErr: transportErr()}
	reg := newRegistry(t, api, time.Minute)

	_, err := reg.Open(context.Background(), "")
	var ext *domain.ErrExternalService
	assert.ErrorAs(t, err, &ext)
}

func TestRegistry_SessionExpires(t *testing.T) {
	api := &fakeAPI{payouts: [][]domain.PendingPayout{baseSnapshot()}}
	reg := newRegistry(t, api, 40*time.Millisecond)

	view, err := reg.Open(context.Background(), "")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	_, err = reg.Get(view.SessionID)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}
