package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Sink consumes events. Implementations must be safe for concurrent use:
// attempt events arrive from every worker.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Or returns s, or Discard when s is nil.
func Or(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// LogSink writes events as structured zerolog lines.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink writing through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(e Event) {
	switch ev := e.(type) {
	case Attempt:
		switch {
		case ev.OK():
			s.logger.Debug().
				Int64("id", ev.ID).
				Int("attempt", ev.Attempt).
				Dur("duration", ev.Duration).
				Msg("Fetch succeeded")
		case ev.Final:
			s.logger.Warn().
				Err(ev.Err).
				Int64("id", ev.ID).
				Int("attempt", ev.Attempt).
				Int("status", ev.Status).
				Str("error_class", ev.ErrorClass).
				Msg("Fetch failed - retries exhausted")
		default:
			s.logger.Debug().
				Err(ev.Err).
				Int64("id", ev.ID).
				Int("attempt", ev.Attempt).
				Int("status", ev.Status).
				Str("error_class", ev.ErrorClass).
				Msg("Fetch attempt failed")
		}

	case Progress:
		s.logger.Info().
			Int("batch", ev.Batch).
			Int("done", ev.Done).
			Int("total", ev.Total).
			Float64("progress_pct", percent(ev.Done, ev.Total)).
			Msg("Batch progress")

	case BatchStart:
		s.logger.Info().
			Int("batch", ev.Batch).
			Int("total_batches", ev.TotalBatches).
			Int("start", ev.Start).
			Int("end", ev.End-1).
			Int("size", ev.End-ev.Start).
			Msg("Processing batch")

	case BatchCommit:
		s.logger.Info().
			Int("batch", ev.Batch).
			Int("success", ev.Success).
			Int("failed", ev.Failed).
			Int("total_success", ev.TotalSuccess).
			Int("total_failed", ev.TotalFailed).
			Float64("progress_pct", percent(ev.Processed, ev.TotalIDs)).
			Str("output", ev.OutputPath).
			Dur("duration", ev.Duration).
			Msg("Batch committed")

	case BatchError:
		s.logger.Error().
			Err(ev.Err).
			Int("batch", ev.Batch).
			Msg("Batch failed - left uncommitted for the next run")

	case RunStart:
		s.logger.Info().
			Str("run_id", ev.RunID).
			Int("total_ids", ev.TotalIDs).
			Int("total_batches", ev.TotalBatches).
			Int("resume_from", ev.ResumeFrom).
			Bool("resumed", ev.Resumed).
			Msg("Run starting")

	case RunComplete:
		s.logger.Info().
			Str("run_id", ev.RunID).
			Str("status", ev.Status).
			Int("total_ids", ev.TotalIDs).
			Int("total_success", ev.TotalSuccess).
			Int("total_failed", ev.TotalFailed).
			Int("completed_batches", ev.CompletedBatches).
			Float64("success_pct", percent(ev.TotalSuccess, ev.TotalIDs)).
			Float64("failed_pct", percent(ev.TotalFailed, ev.TotalIDs)).
			Str("failed_export", ev.FailedExport).
			Dur("duration", ev.Duration).
			Msg("Run finished")
	}
}

func percent(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

var (
	batchesCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_batches_committed_total",
		Help: "Total number of batches committed to the checkpoint",
	})

	batchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_batch_errors_total",
		Help: "Total number of batches left uncommitted because of an error",
	})

	identifiersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_identifiers_total",
		Help: "Identifiers processed in committed batches by outcome",
	}, []string{"outcome"})

	batchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchfetch_batch_duration_seconds",
		Help:    "Wall time to fetch and commit one batch",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	batchInflightProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batchfetch_batch_progress_ratio",
		Help: "Fraction of the current batch that has completed",
	})
)

// MetricsSink records batch-level events as Prometheus metrics. Per-attempt
// metrics are recorded by the fetch package itself.
type MetricsSink struct{}

// Emit implements Sink.
func (MetricsSink) Emit(e Event) {
	switch ev := e.(type) {
	case Progress:
		if ev.Total > 0 {
			batchInflightProgress.Set(float64(ev.Done) / float64(ev.Total))
		}
	case BatchCommit:
		batchesCommittedTotal.Inc()
		identifiersTotal.WithLabelValues("success").Add(float64(ev.Success))
		identifiersTotal.WithLabelValues("failed").Add(float64(ev.Failed))
		batchDurationSeconds.Observe(ev.Duration.Seconds())
	case BatchError:
		batchErrorsTotal.Inc()
	}
}
