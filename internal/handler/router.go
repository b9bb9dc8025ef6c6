package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/nordicloop-admin/payout-console/internal/domain"
	"github.com/nordicloop-admin/payout-console/internal/infra/observability"
	"github.com/nordicloop-admin/payout-console/internal/service"
)

var tracer = otel.Tracer("handler")

// HealthCheck probes one dependency for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterDeps are the collaborators of the HTTP API.
type RouterDeps struct {
	Registry     *service.Registry
	Auth         *service.AdminAuth
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	CORSOrigins  []string
	HealthChecks []HealthCheck
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(deps.HealthChecks))
	r.Get("/readyz", readyzHandler())
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		if deps.Metrics != nil {
			r.Get("/metrics/payouts", payoutMetricsHandler(deps.Metrics))
		}

		if deps.Registry == nil || deps.Auth == nil {
			return
		}
		reg := deps.Registry

		r.Route("/admin/payouts", func(r chi.Router) {
			r.Use(AdminAuthMiddleware(deps.Auth, logger))

			r.Get("/stats", statsHandler(reg, logger))

			// =============================================
			// Dashboard sessions
			// =============================================
			r.Post("/sessions", openSessionHandler(reg, logger))
			r.Route("/sessions/{sessionId}", func(r chi.Router) {
				r.Get("/", getSessionHandler(reg, logger))
				r.Delete("/", closeSessionHandler(reg, logger))
				r.Post("/refresh", refreshHandler(reg, logger))

				// Selection
				r.Post("/sellers/{sellerId}/toggle", toggleSellerHandler(reg, logger))
				r.Post("/sellers/{sellerId}/transactions/{transactionId}/toggle", toggleTransactionHandler(reg, logger))
				r.Post("/select-all", selectAllHandler(reg, logger))
				r.Post("/deselect-all", deselectAllHandler(reg, logger))

				// Scheduling
				r.Put("/form", setFormHandler(reg, logger))
				r.Post("/schedules", createScheduleHandler(reg, logger))
				r.Post("/sellers/{sellerId}/pay-now", payNowHandler(reg, logger))
			})
		})
	})

	return r
}

// ============================================================
// Health & metrics
// ============================================================

func healthzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		services := []domain.ServiceHealth{{Name: "payout-console", Status: "healthy"}}
		overall := "healthy"
		for _, c := range checks {
			status := "healthy"
			if err := c.Check(ctx); err != nil {
				status = "degraded"
				overall = "degraded"
			}
			services = append(services, domain.ServiceHealth{Name: c.Name, Status: status})
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func payoutMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
