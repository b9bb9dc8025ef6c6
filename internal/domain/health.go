package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// PayoutMetrics is returned by GET /v1/metrics/payouts.
type PayoutMetrics struct {
	SchedulesSucceeded     int64   `json:"schedules_succeeded"`
	SchedulesPartial       int64   `json:"schedules_partial"`
	SchedulesFailed        int64   `json:"schedules_failed"`
	PayNowSucceeded        int64   `json:"pay_now_succeeded"`
	PayNowInconsistent     int64   `json:"pay_now_inconsistent"`
	PayNowFailed           int64   `json:"pay_now_failed"`
	ConcurrentRejections   int64   `json:"concurrent_rejections"`
	StaleSelectionsDropped int64   `json:"stale_selections_dropped"`
	ExternalErrors         int64   `json:"external_errors"`
	AvgLoadLatencyMs       float64 `json:"avg_load_latency_ms"`
	StatsCacheHitRate      float64 `json:"stats_cache_hit_rate"`
	Period                 string  `json:"period"`
}
