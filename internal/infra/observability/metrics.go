package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/nordicloop-admin/payout-console/internal/domain"
)

// Outcome labels shared by the schedule and pay-now counters.
const (
	OutcomeSuccess      = "success"
	OutcomePartial      = "partial"
	OutcomeFailed       = "failed"
	OutcomeInconsistent = "inconsistent"
)

// Metrics holds all Prometheus metrics for the payout console.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	schedules         *prometheus.CounterVec
	payNow            *prometheus.CounterVec
	concurrent        *prometheus.CounterVec
	staleDropped      prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payout_operation_duration_seconds",
				Help:    "Duration of payout console operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_external_errors_total",
				Help: "Total errors from the payout API.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		schedules: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_schedule_submissions_total",
				Help: "Schedule submissions by outcome.",
			},
			[]string{"outcome"},
		),
		payNow: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_pay_now_total",
				Help: "Immediate payouts by outcome.",
			},
			[]string{"outcome"},
		),
		concurrent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payout_concurrent_rejections_total",
				Help: "Mutating calls rejected because the same action was in flight.",
			},
			[]string{"action"},
		),
		staleDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "payout_stale_selections_dropped_total",
				Help: "Selected transactions dropped because a refresh no longer listed them.",
			},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(operation string) {
	m.externalErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrSchedule counts a schedule submission outcome.
func (m *Metrics) IncrSchedule(outcome string) {
	m.schedules.WithLabelValues(outcome).Inc()
}

// IncrPayNow counts an immediate payout outcome.
func (m *Metrics) IncrPayNow(outcome string) {
	m.payNow.WithLabelValues(outcome).Inc()
}

// IncrConcurrentRejection counts a call rejected by the in-flight guard.
func (m *Metrics) IncrConcurrentRejection(action string) {
	m.concurrent.WithLabelValues(action).Inc()
}

// AddStaleDropped counts selections dropped on refresh.
func (m *Metrics) AddStaleDropped(n int) {
	if n > 0 {
		m.staleDropped.Add(float64(n))
	}
}

// Snapshot returns the payout counters for GET /v1/metrics/payouts.
func (m *Metrics) Snapshot() *domain.PayoutMetrics {
	hits := getCounterValue(m.cacheHits, "stats")
	misses := getCounterValue(m.cacheMisses, "stats")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	avgLoadMs := float64(0)
	if sum, count := getHistogramValue(m.operationDuration, "load"); count > 0 {
		avgLoadMs = sum / float64(count) * 1000
	}

	return &domain.PayoutMetrics{
		SchedulesSucceeded:     int64(getCounterValue(m.schedules, OutcomeSuccess)),
		SchedulesPartial:       int64(getCounterValue(m.schedules, OutcomePartial)),
		SchedulesFailed:        int64(getCounterValue(m.schedules, OutcomeFailed)),
		PayNowSucceeded:        int64(getCounterValue(m.payNow, OutcomeSuccess)),
		PayNowInconsistent:     int64(getCounterValue(m.payNow, OutcomeInconsistent)),
		PayNowFailed:           int64(getCounterValue(m.payNow, OutcomeFailed)),
		ConcurrentRejections:   int64(sumCounterVec(m.concurrent)),
		StaleSelectionsDropped: int64(readCounter(m.staleDropped)),
		ExternalErrors:         int64(sumCounterVec(m.externalErrors)),
		AvgLoadLatencyMs:       avgLoadMs,
		StatsCacheHitRate:      hitRate,
		Period:                 "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return readCounter(cv.WithLabelValues(label))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// sumCounterVec adds up every label combination of a CounterVec.
func sumCounterVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	total := float64(0)
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err == nil && m.Counter != nil {
			total += m.Counter.GetValue()
		}
	}
	return total
}

func getHistogramValue(hv *prometheus.HistogramVec, label string) (float64, uint64) {
	m := &dto.Metric{}
	if err := hv.WithLabelValues(label).(prometheus.Metric).Write(m); err != nil {
		return 0, 0
	}
	if m.Histogram == nil {
		return 0, 0
	}
	return m.Histogram.GetSampleSum(), m.Histogram.GetSampleCount()
}
