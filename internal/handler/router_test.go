package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/handler"
	"github.com/nordicloop-admin/payout-console/internal/infra/observability"
)

func opsRouter(checks ...handler.HealthCheck) http.Handler {
	return handler.NewRouter(handler.RouterDeps{
		Metrics:      observability.NewMetrics(),
		Logger:       zap.NewNop(),
		HealthChecks: checks,
	})
}

func TestHealthz(t *testing.T) {
	router := opsRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHealthz_DegradedDependency(t *testing.T) {
	router := opsRouter(
		handler.HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }},
		handler.HealthCheck{Name: "payout-api", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	require.Len(t, health.Services, 3)
	assert.Equal(t, domain.ServiceHealth{Name: "redis", Status: "degraded"}, health.Services[1])
	assert.Equal(t, domain.ServiceHealth{Name: "payout-api", Status: "healthy"}, health.Services[2])
}

func TestReadyz(t *testing.T) {
	router := opsRouter()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestPing(t *testing.T) {
	rec := httptest.NewRecorder()
	opsRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetrics(t *testing.T) {
	router := opsRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestPayoutMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.IncrSchedule(observability.OutcomeSuccess)
	router := handler.NewRouter(handler.RouterDeps{Metrics: metrics, Logger: zap.NewNop()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metrics/payouts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap domain.PayoutMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.SchedulesSucceeded)
	assert.Equal(t, "all_time", snap.Period)
}

func TestCORSPreflight(t *testing.T) {
	router := handler.NewRouter(handler.RouterDeps{
		Logger:      zap.NewNop(),
		CORSOrigins: []string{"https://admin.nordicloop.test"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/v1/admin/payouts/sessions", nil)
	req.Header.Set("Origin", "https://admin.nordicloop.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://admin.nordicloop.test", rec.Header().Get("Access-Control-Allow-Origin"))
}
