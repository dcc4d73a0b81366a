package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCapturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_captured_total",
		Help: "Total number of sales captured into local storage",
	})

	SalesCaptureFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_capture_failed_total",
		Help: "Total number of failed sale captures",
	}, []string{"reason"})

	SalesSyncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_synced_total",
		Help: "Total number of sales acknowledged by the central API",
	})

	SaleSyncFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sale_sync_failures_total",
		Help: "Total number of failed sale submissions",
	}, []string{"reason"})

	SyncPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_passes_total",
		Help: "Total number of sync passes started",
	})

	SyncPassesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_passes_skipped_total",
		Help: "Total number of sync passes skipped",
	}, []string{"reason"})

	UnsyncedSales = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unsynced_sales",
		Help: "Current number of sales awaiting sync",
	})

	SyncPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_pass_duration_seconds",
		Help:    "Duration of full sync passes",
		Buckets: prometheus.DefBuckets,
	})

	SaleSubmissionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sale_submission_latency_seconds",
		Help:    "Latency of individual sale submissions to the central API",
		Buckets: prometheus.DefBuckets,
	})

	ProductCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_cache_hits_total",
		Help: "Product cache lookups by result",
	}, []string{"source"})

	ShellCacheServesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shell_cache_serves_total",
		Help: "Shell asset responses by origin",
	}, []string{"origin"})

	ConnectivityTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connectivity_transitions_total",
		Help: "Connectivity state transitions",
	}, []string{"state"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
