package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeme_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "safeme_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// SyncRuns counts sync passes by terminal outcome
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeme_sync_runs_total",
			Help: "Number of sync worker runs by outcome",
		},
		[]string{"outcome", "trigger"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "safeme_sync_run_duration_seconds",
			Help:    "Duration of sync worker runs",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	AlertSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeme_alert_syncs_total",
			Help: "Per-record remote push results",
		},
		[]string{"result"},
	)

	Emails = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeme_alert_emails_total",
			Help: "Alert emails sent or failed per contact",
		},
		[]string{"provider", "result"},
	)

	PendingAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "safeme_pending_alerts",
			Help: "Alerts waiting in the local queue",
		},
	)

	AlertsSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safeme_alerts_saved_total",
			Help: "Alerts accepted, by path taken",
		},
		[]string{"path"},
	)
)

func Init() {
	prometheus.MustRegister(
		HTTPRequests,
		RequestDuration,
		SyncRuns,
		SyncDuration,
		AlertSyncs,
		Emails,
		PendingAlerts,
		AlertsSaved,
	)
}
