package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/infra/observability"
	"github.com/nordicloop-admin/payout-console/internal/port"
	"github.com/nordicloop-admin/payout-console/internal/selection"
)

// In-flight actions. The guard key is "<action>:<session id>".
const (
	ActionCreateSchedule = "create-schedule"
	ActionPayNow         = "pay-now"
)

// DashboardDeps are the collaborators shared by every dashboard session.
type DashboardDeps struct {
	Loader    *SnapshotLoader
	Creator   port.ScheduleCreator
	Processor port.PayoutProcessor
	Guard     port.InFlightGuard
	Metrics   *observability.Metrics
	Logger    *zap.Logger

	// MutationTimeout bounds each create/process call. Zero means no bound.
	MutationTimeout time.Duration
	// Location resolves "today" for pay-now. Nil means UTC.
	Location *time.Location
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Form holds the schedule inputs typed by the operator.
type Form struct {
	ScheduledDate string `json:"scheduled_date"`
	Notes         string `json:"notes"`
}

// SelectedSeller is one entry of the selection as shown to the operator.
type SelectedSeller struct {
	SellerID       string                   `json:"seller_id"`
	Classification selection.Classification `json:"classification"`
	TransactionIDs []string                 `json:"transaction_ids"`
}

// View is a consistent read of a dashboard session.
type View struct {
	SessionID string           `json:"session_id"`
	Snapshot  *domain.Snapshot `json:"snapshot"`
	Selection []SelectedSeller `json:"selection"`
	Totals    selection.Totals `json:"totals"`
	Form      Form             `json:"form"`
	// DroppedOnRefresh counts selected transactions the last refresh
	// removed because the snapshot no longer listed them.
	DroppedOnRefresh int `json:"dropped_on_refresh"`
}

// Dashboard is one operator's payout session: the current snapshot, the
// selection over it and the schedule form. Network calls never run while
// the state lock is held.
type Dashboard struct {
	id   string
	deps DashboardDeps

	mu         sync.Mutex
	statsSince string
	snapshot   *domain.Snapshot
	index      *selection.Index
	sel        selection.State
	form       Form
	dropped    int
}

// NewDashboard creates an empty session. Call Refresh to load data.
func NewDashboard(id, statsSince string, deps DashboardDeps) *Dashboard {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Dashboard{
		id:         id,
		deps:       deps,
		statsSince: statsSince,
		snapshot:   &domain.Snapshot{},
		index:      selection.NewIndex(nil),
		sel:        selection.Empty(),
	}
}

// ID returns the session id.
func (d *Dashboard) ID() string { return d.id }

// View returns the current state.
func (d *Dashboard) View() *View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewLocked()
}

func (d *Dashboard) viewLocked() *View {
	sellers := d.sel.Sellers()
	selected := make([]SelectedSeller, 0, len(sellers))
	for _, id := range sellers {
		selected = append(selected, SelectedSeller{
			SellerID:       id,
			Classification: d.sel.Classification(id),
			TransactionIDs: d.sel.Selected(id),
		})
	}
	return &View{
		SessionID:        d.id,
		Snapshot:         d.snapshot,
		Selection:        selected,
		Totals:           selection.Aggregate(d.index, d.sel),
		Form:             d.form,
		DroppedOnRefresh: d.dropped,
	}
}

// Refresh reloads the snapshot and drops selected ids it no longer lists.
func (d *Dashboard) Refresh(ctx context.Context) (*View, error) {
	ctx, span := tracer.Start(ctx, "Dashboard.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", d.id))

	d.mu.Lock()
	since := d.statsSince
	d.mu.Unlock()

	snap, err := d.deps.Loader.Load(ctx, since)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// An older load finishing late must not replace a newer snapshot.
	if snap.FetchedAt.Before(d.snapshot.FetchedAt) {
		return d.viewLocked(), nil
	}

	d.snapshot = snap
	d.index = selection.NewIndex(snap.Payouts)
	d.sel, d.dropped = d.sel.Reconcile(d.index)
	if d.dropped > 0 {
		d.deps.Metrics.AddStaleDropped(d.dropped)
		d.deps.Logger.Info("dropped stale selections on refresh",
			zap.String("session_id", d.id),
			zap.Int("dropped", d.dropped),
		)
	}
	return d.viewLocked(), nil
}

// ToggleSeller flips a seller between fully selected and not selected.
func (d *Dashboard) ToggleSeller(sellerID string) *View {
	return d.apply(func(s selection.State) selection.State {
		return s.ToggleSeller(d.index, sellerID)
	})
}

// ToggleTransaction flips one transaction of a seller.
func (d *Dashboard) ToggleTransaction(sellerID, txID string) *View {
	return d.apply(func(s selection.State) selection.State {
		return s.ToggleTransaction(d.index, sellerID, txID)
	})
}

// SelectAll fully selects every seller of the snapshot.
func (d *Dashboard) SelectAll() *View {
	return d.apply(func(s selection.State) selection.State {
		return s.SelectAll(d.index)
	})
}

// DeselectAll clears the selection.
func (d *Dashboard) DeselectAll() *View {
	return d.apply(func(s selection.State) selection.State {
		return s.DeselectAll()
	})
}

func (d *Dashboard) apply(fn func(selection.State) selection.State) *View {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sel = fn(d.sel)
	return d.viewLocked()
}

// SetForm stores the schedule inputs. An empty date is accepted here and
// rejected at submission.
func (d *Dashboard) SetForm(scheduledDate, notes string) (*View, error) {
	scheduledDate = strings.TrimSpace(scheduledDate)
	if err := validateDate("scheduled_date", scheduledDate, false); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.form = Form{ScheduledDate: scheduledDate, Notes: notes}
	return d.viewLocked(), nil
}

// ============================================================
// Schedule creation
// ============================================================

// CreateSchedule submits the current selection as a payout schedule batch.
//
// On full success the submitted sellers leave the selection and the form is
// cleared. When the payout API
// rejects some sellers, the outcome is returned together with a
// *domain.ErrPartialFailure; accepted sellers leave the selection and the
// rejected ones stay selected for a retry. A transport failure leaves
// everything untouched.
func (d *Dashboard) CreateSchedule(ctx context.Context) (*domain.ScheduleOutcome, error) {
	ctx, span := tracer.Start(ctx, "Dashboard.CreateSchedule")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", d.id))

	release, err := d.acquire(ctx, ActionCreateSchedule)
	if err != nil {
		return nil, err
	}
	defer release()

	d.mu.Lock()
	sub := d.sel.Submission(d.index)
	totals := selection.Aggregate(d.index, d.sel)
	form := d.form
	d.mu.Unlock()

	if len(sub.SellerIDs) == 0 {
		return nil, &domain.ErrValidation{Field: "sellers", Message: "at least one seller must be selected"}
	}
	if err := validateDate("scheduled_date", form.ScheduledDate, true); err != nil {
		return nil, err
	}
	if err := singleCurrency(totals); err != nil {
		return nil, err
	}

	req := &domain.CreateSchedulesRequest{
		SellerIDs:      sub.SellerIDs,
		ScheduledDate:  form.ScheduledDate,
		Notes:          form.Notes,
		TransactionIDs: sub.TransactionIDs,
		IdempotencyKey: uuid.NewString(),
	}
	span.SetAttributes(
		attribute.Int("payouts.sellers", len(req.SellerIDs)),
		attribute.String("payouts.scheduled_date", req.ScheduledDate),
	)

	start := time.Now()
	res, err := d.createSchedules(ctx, req)
	d.deps.Metrics.RecordDuration(ActionCreateSchedule, time.Since(start))
	if err != nil {
		d.deps.Metrics.IncrSchedule(observability.OutcomeFailed)
		d.deps.Metrics.IncrExternalError(ActionCreateSchedule)
		d.deps.Logger.Error("schedule creation failed, selection kept for retry",
			zap.String("session_id", d.id),
			zap.Strings("seller_ids", req.SellerIDs),
			zap.Error(err),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	outcome := &domain.ScheduleOutcome{
		ScheduleIDs: make([]string, 0, len(res.Schedules)),
		Succeeded:   make([]string, 0, len(res.Schedules)),
		Failed:      res.Failed,
	}
	scheduled := make(map[string]bool, len(res.Schedules))
	for _, s := range res.Schedules {
		outcome.ScheduleIDs = append(outcome.ScheduleIDs, s.ID)
		if !scheduled[s.SellerID] {
			scheduled[s.SellerID] = true
			outcome.Succeeded = append(outcome.Succeeded, s.SellerID)
		}
	}

	// Only submitted sellers leave the selection; toggles made while the
	// call was in flight survive.
	d.mu.Lock()
	if outcome.Partial() {
		d.sel = d.sel.Without(outcome.Succeeded...)
	} else {
		d.sel = d.sel.Without(req.SellerIDs...)
		d.form = Form{}
	}
	d.mu.Unlock()

	if len(outcome.Succeeded) > 0 {
		d.refreshAfterMutation(ctx, ActionCreateSchedule)
	}

	if outcome.Partial() {
		d.deps.Metrics.IncrSchedule(observability.OutcomePartial)
		d.deps.Logger.Warn("payout API rejected some sellers",
			zap.String("session_id", d.id),
			zap.Strings("schedule_ids", outcome.ScheduleIDs),
			zap.Strings("succeeded", outcome.Succeeded),
			zap.Int("failed", len(outcome.Failed)),
		)
		return outcome, &domain.ErrPartialFailure{Outcome: outcome}
	}

	d.deps.Metrics.IncrSchedule(observability.OutcomeSuccess)
	d.deps.Logger.Info("payout schedules created",
		zap.String("session_id", d.id),
		zap.Strings("schedule_ids", outcome.ScheduleIDs),
		zap.Strings("seller_ids", outcome.Succeeded),
	)
	return outcome, nil
}

// ============================================================
// Immediate payout
// ============================================================

// PayNow creates a schedule dated today for a single seller and processes
// it straight away with force_process. It moves money, so confirmed must
// be true.
//
// If the schedule is created but cannot be processed, the error is a
// *domain.ErrInconsistentState carrying the schedule ids; nothing is retried.
func (d *Dashboard) PayNow(ctx context.Context, sellerID string, confirmed bool) (*domain.PayNowOutcome, error) {
	ctx, span := tracer.Start(ctx, "Dashboard.PayNow")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", d.id),
		attribute.String("seller.id", sellerID),
	)

	if !confirmed {
		return nil, &domain.ErrValidation{Field: "confirm", Message: "immediate payout must be explicitly confirmed"}
	}

	release, err := d.acquire(ctx, ActionPayNow)
	if err != nil {
		return nil, err
	}
	defer release()

	d.mu.Lock()
	known := d.index.HasSeller(sellerID)
	whole := selection.Aggregate(d.index, selection.Empty().ToggleSeller(d.index, sellerID))
	d.mu.Unlock()
	if !known {
		return nil, &domain.ErrNotFound{Resource: "pending payout", ID: sellerID}
	}
	if err := singleCurrency(whole); err != nil {
		return nil, err
	}

	today := d.deps.Clock().In(d.deps.Location).Format(dateLayout)
	created, err := d.createSchedules(ctx, &domain.CreateSchedulesRequest{
		SellerIDs:      []string{sellerID},
		ScheduledDate:  today,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		d.deps.Metrics.IncrPayNow(observability.OutcomeFailed)
		d.deps.Metrics.IncrExternalError(ActionPayNow)
		d.deps.Logger.Error("pay-now schedule creation failed",
			zap.String("session_id", d.id),
			zap.String("seller_id", sellerID),
			zap.Error(err),
		)
		return nil, err
	}

	scheduleIDs := make([]string, 0, len(created.Schedules))
	for _, s := range created.Schedules {
		scheduleIDs = append(scheduleIDs, s.ID)
	}

	if len(created.Failed) > 0 && len(scheduleIDs) == 0 {
		d.deps.Metrics.IncrPayNow(observability.OutcomeFailed)
		d.deps.Logger.Warn("payout API rejected pay-now seller",
			zap.String("session_id", d.id),
			zap.String("seller_id", sellerID),
			zap.String("reason", created.Failed[0].Reason),
		)
		return nil, &domain.ErrPartialFailure{Outcome: &domain.ScheduleOutcome{
			ScheduleIDs: scheduleIDs,
			Succeeded:   []string{},
			Failed:      created.Failed,
		}}
	}

	if len(scheduleIDs) != 1 {
		return nil, d.inconsistent(ctx, sellerID, scheduleIDs,
			fmt.Errorf("expected exactly one schedule, got %d; not processed", len(scheduleIDs)))
	}

	processed, err := d.processPayouts(ctx, &domain.ProcessPayoutsRequest{
		ScheduleIDs:  scheduleIDs,
		ForceProcess: true,
	})
	if err == nil {
		err = processFailure(processed, scheduleIDs[0])
	}
	if err != nil {
		return nil, d.inconsistent(ctx, sellerID, scheduleIDs, err)
	}

	d.mu.Lock()
	d.sel = d.sel.Without(sellerID)
	d.mu.Unlock()
	d.refreshAfterMutation(ctx, ActionPayNow)

	d.deps.Metrics.IncrPayNow(observability.OutcomeSuccess)
	d.deps.Logger.Info("immediate payout processed",
		zap.String("session_id", d.id),
		zap.String("seller_id", sellerID),
		zap.String("schedule_id", scheduleIDs[0]),
	)
	return &domain.PayNowOutcome{SellerID: sellerID, ScheduleID: scheduleIDs[0]}, nil
}

// singleCurrency rejects a submission whose transactions span currencies.
func singleCurrency(t selection.Totals) error {
	if len(t.Currencies) <= 1 {
		return nil
	}
	return &domain.ErrValidation{
		Field:   "currency",
		Message: fmt.Sprintf("selection mixes currencies (%s); schedule one currency at a time", strings.Join(t.Currencies, ", ")),
	}
}

func processFailure(res *domain.ProcessPayoutsResult, scheduleID string) error {
	for _, f := range res.Failed {
		if f.ScheduleID == scheduleID {
			return fmt.Errorf("payout API refused to process schedule %s: %s", scheduleID, f.Reason)
		}
	}
	for _, id := range res.Processed {
		if id == scheduleID {
			return nil
		}
	}
	return fmt.Errorf("payout API did not report schedule %s as processed", scheduleID)
}

func (d *Dashboard) inconsistent(ctx context.Context, sellerID string, scheduleIDs []string, cause error) error {
	d.deps.Metrics.IncrPayNow(observability.OutcomeInconsistent)
	d.deps.Logger.Error("schedule created but not processed; operator must reconcile",
		zap.String("session_id", d.id),
		zap.String("seller_id", sellerID),
		zap.Strings("schedule_ids", scheduleIDs),
		zap.Error(cause),
	)
	// Show the operator what the payout API now reports.
	d.refreshAfterMutation(ctx, ActionPayNow)
	return &domain.ErrInconsistentState{SellerID: sellerID, ScheduleIDs: scheduleIDs, Err: cause}
}

// ============================================================
// Plumbing
// ============================================================

func (d *Dashboard) acquire(ctx context.Context, action string) (func(), error) {
	release, ok, err := d.deps.Guard.TryAcquire(ctx, action+":"+d.id)
	if err != nil {
		return nil, fmt.Errorf("in-flight guard: %w", err)
	}
	if !ok {
		d.deps.Metrics.IncrConcurrentRejection(action)
		d.deps.Logger.Warn("rejected concurrent operation",
			zap.String("session_id", d.id),
			zap.String("action", action),
		)
		return nil, &domain.ErrConcurrentOperation{Action: action}
	}
	return release, nil
}

func (d *Dashboard) createSchedules(ctx context.Context, req *domain.CreateSchedulesRequest) (*domain.CreateSchedulesResult, error) {
	ctx, cancel := d.mutationContext(ctx)
	defer cancel()

	res, err := d.deps.Creator.CreatePayoutSchedules(ctx, req)
	if err != nil {
		return nil, asTimeout("create-payout-schedules", err)
	}
	return res, nil
}

func (d *Dashboard) processPayouts(ctx context.Context, req *domain.ProcessPayoutsRequest) (*domain.ProcessPayoutsResult, error) {
	ctx, cancel := d.mutationContext(ctx)
	defer cancel()

	res, err := d.deps.Processor.ProcessPayouts(ctx, req)
	if err != nil {
		return nil, asTimeout("process-payouts", err)
	}
	return res, nil
}

func (d *Dashboard) mutationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.deps.MutationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.deps.MutationTimeout)
}

// refreshAfterMutation reloads the snapshot after money moved. The mutation
// already happened, so a failed reload is only logged.
func (d *Dashboard) refreshAfterMutation(ctx context.Context, action string) {
	if _, err := d.Refresh(ctx); err != nil {
		d.deps.Logger.Warn("snapshot refresh after mutation failed",
			zap.String("session_id", d.id),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func asTimeout(op string, err error) error {
	var timeout *domain.ErrTimeout
	if errors.As(err, &timeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ErrTimeout{Operation: op}
	}
	return err
}
