package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/domain"
)

// SessionStore keeps dashboards between requests. Touch extends the
// lifetime of a live session.
type SessionStore interface {
	Get(key string) (*Dashboard, bool)
	Set(key string, value *Dashboard)
	Touch(key string) bool
	Delete(key string)
}

// Registry opens and looks up dashboard sessions. Sessions live only in
// this process and expire after a period of inactivity.
type Registry struct {
	deps   DashboardDeps
	store  SessionStore
	logger *zap.Logger
	newID  func() string
}

// NewRegistry creates a registry backed by store.
func NewRegistry(deps DashboardDeps, store SessionStore, logger *zap.Logger) *Registry {
	return &Registry{
		deps:   deps,
		store:  store,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Loader exposes the snapshot loader (used by the stats route).
func (r *Registry) Loader() *SnapshotLoader {
	return r.deps.Loader
}

// Open creates a session and loads its first snapshot. statsSince is an
// optional YYYY-MM-DD lower bound for the stats overview.
func (r *Registry) Open(ctx context.Context, statsSince string) (*View, error) {
	ctx, span := tracer.Start(ctx, "Registry.Open")
	defer span.End()

	if err := validateDate("date_range_start", statsSince, false); err != nil {
		return nil, err
	}

	d := NewDashboard(r.newID(), statsSince, r.deps)
	view, err := d.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	r.store.Set(d.ID(), d)

	r.logger.Info("dashboard session opened",
		zap.String("session_id", d.ID()),
		zap.Int("sellers", len(view.Snapshot.Payouts)),
	)
	return view, nil
}

// Get returns a live session and extends its lifetime.
func (r *Registry) Get(id string) (*Dashboard, error) {
	d, ok := r.store.Get(id)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "session", ID: id}
	}
	r.store.Touch(id)
	return d, nil
}

// Close discards a session and its unsent selection.
func (r *Registry) Close(id string) error {
	if _, ok := r.store.Get(id); !ok {
		return &domain.ErrNotFound{Resource: "session", ID: id}
	}
	r.store.Delete(id)
	r.logger.Info("dashboard session closed", zap.String("session_id", id))
	return nil
}
