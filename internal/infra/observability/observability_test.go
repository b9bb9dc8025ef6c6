package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nordicloop-admin/payout-console/internal/infra/observability"
)

func TestMetricsSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrSchedule(observability.OutcomeSuccess)
	m.IncrSchedule(observability.OutcomeSuccess)
	m.IncrSchedule(observability.OutcomePartial)
	m.IncrPayNow(observability.OutcomeInconsistent)
	m.IncrConcurrentRejection("create-schedule")
	m.IncrConcurrentRejection("pay-now")
	m.AddStaleDropped(3)
	m.AddStaleDropped(0)
	m.IncrExternalError("load")
	m.IncrCacheHit("stats")
	m.IncrCacheMiss("stats")
	m.RecordDuration("load", 100*time.Millisecond)
	m.RecordDuration("load", 300*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.SchedulesSucceeded)
	assert.Equal(t, int64(1), snap.SchedulesPartial)
	assert.Equal(t, int64(0), snap.SchedulesFailed)
	assert.Equal(t, int64(1), snap.PayNowInconsistent)
	assert.Equal(t, int64(2), snap.ConcurrentRejections)
	assert.Equal(t, int64(3), snap.StaleSelectionsDropped)
	assert.Equal(t, int64(1), snap.ExternalErrors)
	assert.InDelta(t, 0.5, snap.StatsCacheHitRate, 1e-9)
	assert.InDelta(t, 200, snap.AvgLoadLatencyMs, 1e-6)
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := observability.NewMetrics()
	b := observability.NewMetrics()
	a.IncrPayNow(observability.OutcomeSuccess)

	assert.Equal(t, int64(1), a.Snapshot().PayNowSucceeded)
	assert.Equal(t, int64(0), b.Snapshot().PayNowSucceeded)
}

func TestRequestLogger_LevelAndPayoutFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	r := chi.NewRouter()
	r.Use(observability.RequestLogger(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/v1/sessions/{sessionId}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/v1/sessions/{sessionId}/sellers/{sellerId}/pay-now", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	r.Post("/v1/sessions/{sessionId}/schedules", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	reqs := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/healthz", nil),
		httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", nil),
		httptest.NewRequest(http.MethodPost, "/v1/sessions/abc/sellers/S1/pay-now", nil),
		httptest.NewRequest(http.MethodPost, "/v1/sessions/abc/schedules", nil),
	}
	for _, req := range reqs {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "abc", entries[1].ContextMap()["session_id"])
	assert.Equal(t, "view-session", entries[1].ContextMap()["action"])

	payNow := entries[2].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "pay-now", payNow["action"])
	assert.Equal(t, "S1", payNow["seller_id"])
	assert.Equal(t, "/v1/sessions/{sessionId}/sellers/{sellerId}/pay-now", payNow["route"])

	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "create-schedule", entries[3].ContextMap()["action"])
}

func TestPayoutAction(t *testing.T) {
	tests := []struct {
		method, pattern, want string
	}{
		{http.MethodPost, "/v1/admin/payouts/sessions", "open-session"},
		{http.MethodGet, "/v1/admin/payouts/sessions/{sessionId}/", "view-session"},
		{http.MethodDelete, "/v1/admin/payouts/sessions/{sessionId}/", "close-session"},
		{http.MethodPost, "/v1/admin/payouts/sessions/{sessionId}/refresh", "refresh"},
		{http.MethodPost, "/v1/admin/payouts/sessions/{sessionId}/sellers/{sellerId}/toggle", "toggle-seller"},
		{http.MethodPost, "/v1/admin/payouts/sessions/{sessionId}/sellers/{sellerId}/transactions/{transactionId}/toggle", "toggle-transaction"},
		{http.MethodPost, "/v1/admin/payouts/sessions/{sessionId}/select-all", "select-all"},
		{http.MethodPut, "/v1/admin/payouts/sessions/{sessionId}/form", "set-form"},
		{http.MethodPost, "/v1/admin/payouts/sessions/{sessionId}/schedules", "create-schedule"},
		{http.MethodPost, "/v1/admin/payouts/sessions/{sessionId}/sellers/{sellerId}/pay-now", "pay-now"},
		{http.MethodGet, "/v1/admin/payouts/stats", ""},
		{http.MethodGet, "/healthz", ""},
		{http.MethodGet, "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, observability.PayoutAction(tt.method, tt.pattern), tt.pattern)
	}
}

func TestInitTracer_EmptyEndpointIsNoop(t *testing.T) {
	shutdown, err := observability.InitTracer("", "payout-console-test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
