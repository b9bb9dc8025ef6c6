package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/service"
)

type formRequest struct {
	ScheduledDate string `json:"scheduled_date" validate:"omitempty,datetime=2006-01-02"`
	Notes         string `json:"notes" validate:"max=1000"`
}

type payNowRequest struct {
	Confirm bool `json:"confirm"`
}

type scheduleResponse struct {
	Outcome *domain.ScheduleOutcome `json:"outcome"`
	View    *service.View           `json:"view"`
	Error   string                  `json:"error,omitempty"`
}

type payNowResponse struct {
	Outcome *domain.PayNowOutcome `json:"outcome"`
	View    *service.View         `json:"view"`
}

// session resolves {sessionId} or writes the error response.
func session(w http.ResponseWriter, r *http.Request, reg *service.Registry, logger *zap.Logger) (*service.Dashboard, bool) {
	d, err := reg.Get(chi.URLParam(r, "sessionId"))
	if err != nil {
		handleServiceError(w, err, logger)
		return nil, false
	}
	return d, true
}

// ============================================================
// Sessions: /v1/admin/payouts/sessions
// ============================================================

func openSessionHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/payouts/sessions")
		defer span.End()

		view, err := reg.Open(ctx, r.URL.Query().Get("date_range_start"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("session.id", view.SessionID))
		logger.Info("admin opened payout session",
			zap.String("admin", AdminFromContext(ctx)),
			zap.String("session_id", view.SessionID),
		)
		writeJSON(w, http.StatusCreated, view)
	}
}

func getSessionHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := session(w, r, reg, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, d.View())
	}
}

func closeSessionHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reg.Close(chi.URLParam(r, "sessionId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func refreshHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/payouts/sessions/{sessionId}/refresh")
		defer span.End()

		d, ok := session(w, r, reg, logger)
		if !ok {
			return
		}
		view, err := d.Refresh(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// ============================================================
// Selection
// ============================================================

func toggleSellerHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := session(w, r, reg, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, d.ToggleSeller(chi.URLParam(r, "sellerId")))
	}
}

func toggleTransactionHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := session(w, r, reg, logger)
		if !ok {
			return
		}
		view := d.ToggleTransaction(chi.URLParam(r, "sellerId"), chi.URLParam(r, "transactionId"))
		writeJSON(w, http.StatusOK, view)
	}
}

func selectAllHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := session(w, r, reg, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, d.SelectAll())
	}
}

func deselectAllHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := session(w, r, reg, logger)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, d.DeselectAll())
	}
}

// ============================================================
// Scheduling
// ============================================================

func setFormHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, ok := session(w, r, reg, logger)
		if !ok {
			return
		}

		var req formRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		view, err := d.SetForm(req.ScheduledDate, req.Notes)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func createScheduleHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/payouts/sessions/{sessionId}/schedules")
		defer span.End()

		d, ok := session(w, r, reg, logger)
		if !ok {
			return
		}
		span.SetAttributes(attribute.String("session.id", d.ID()))

		outcome, err := d.CreateSchedule(ctx)
		var partial *domain.ErrPartialFailure
		switch {
		case errors.As(err, &partial):
			writeJSON(w, http.StatusMultiStatus, scheduleResponse{Outcome: outcome, View: d.View(), Error: err.Error()})
		case err != nil:
			handleServiceError(w, err, logger)
		default:
			logger.Info("admin created payout schedules",
				zap.String("admin", AdminFromContext(ctx)),
				zap.String("session_id", d.ID()),
				zap.Strings("schedule_ids", outcome.ScheduleIDs),
			)
			writeJSON(w, http.StatusCreated, scheduleResponse{Outcome: outcome, View: d.View()})
		}
	}
}

func payNowHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/payouts/sessions/{sessionId}/sellers/{sellerId}/pay-now")
		defer span.End()

		d, ok := session(w, r, reg, logger)
		if !ok {
			return
		}
		sellerID := chi.URLParam(r, "sellerId")
		span.SetAttributes(
			attribute.String("session.id", d.ID()),
			attribute.String("seller.id", sellerID),
		)

		var req payNowRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		outcome, err := d.PayNow(ctx, sellerID, req.Confirm)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		logger.Info("admin paid seller immediately",
			zap.String("admin", AdminFromContext(ctx)),
			zap.String("seller_id", sellerID),
			zap.String("schedule_id", outcome.ScheduleID),
		)
		writeJSON(w, http.StatusOK, payNowResponse{Outcome: outcome, View: d.View()})
	}
}

// ============================================================
// Stats: GET /v1/admin/payouts/stats
// ============================================================

func statsHandler(reg *service.Registry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/payouts/stats")
		defer span.End()

		stats, err := reg.Loader().Stats(ctx, r.URL.Query().Get("date_range_start"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
