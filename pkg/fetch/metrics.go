package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_requests_total",
		Help: "Total remote requests by HTTP status (or transport error)",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchfetch_request_duration_seconds",
		Help:    "Remote request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	attemptErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_attempt_errors_total",
		Help: "Total failed fetch attempts by error class",
	}, []string{"error_class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchfetch_retry_backoff_seconds",
		Help:    "Backoff waited between attempts",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_retry_exhausted_total",
		Help: "Total number of identifiers that exhausted their attempts by last error class",
	}, []string{"error_class"})
)
