// Package metrics exposes the Prometheus registry used by batchfetch.
// All metrics are defined in their respective packages (fetch, pool, batch,
// checkpoint, observe, ratelimit) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and the /metrics handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by batchfetch.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/fetch):
//   - batchfetch_requests_total{status} (Counter): HTTP responses by status code
//   - batchfetch_request_duration_seconds (Histogram): Duration of one attempt
//   - batchfetch_attempt_errors_total{error_class} (Counter): Failed attempts by class
//
// Retry Metrics (pkg/fetch):
//   - batchfetch_retries_total{error_class} (Counter): Retries by error class
//   - batchfetch_retry_backoff_seconds (Histogram): Wait before each retry
//   - batchfetch_retry_exhausted_total{error_class} (Counter): Identifiers that exhausted retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - batchfetch_rate_limit_wait_seconds (Histogram): Time spent waiting for a token or cooldown
//   - batchfetch_rate_limit_pauses_total (Counter): Cooldowns armed by Retry-After
//
// Pool Metrics (pkg/pool):
//   - batchfetch_pool_inflight (Gauge): Fetch units currently executing
//
// Batch Metrics (pkg/batch, pkg/observe):
//   - batchfetch_batches_committed_total (Counter): Batches whose checkpoint was saved
//   - batchfetch_batch_errors_total (Counter): Batches rolled back after an I/O error
//   - batchfetch_identifiers_total{outcome} (Counter): Committed identifiers by success/failed
//   - batchfetch_batch_duration_seconds (Histogram): Batch wall time including commit
//   - batchfetch_batch_progress_ratio (Gauge): Completion of the running batch (0..1)
//   - batchfetch_checkpoint_rollbacks_total (Counter): Commits rolled back
//   - batchfetch_batch_pacing_seconds_total (Counter): Time spent pacing between batches
//
// Checkpoint Metrics (pkg/checkpoint):
//   - batchfetch_checkpoint_saves_total{backend} (Counter): Saves by backend (file, redis)
//   - batchfetch_checkpoint_errors_total{backend, operation} (Counter): Failed load/save/reset
//   - batchfetch_checkpoint_size_bytes{backend} (Gauge): Size of the last saved checkpoint
//
// Example Prometheus Queries:
//
//   # Success Ratio
//   sum(rate(batchfetch_identifiers_total{outcome="success"}[5m])) /
//   sum(rate(batchfetch_identifiers_total[5m]))
//
//   # Retry Pressure
//   sum by (error_class) (rate(batchfetch_retries_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(batchfetch_request_duration_seconds_bucket[5m]))
//
//   # Throttled by the API
//   rate(batchfetch_requests_total{status="429"}[5m])
