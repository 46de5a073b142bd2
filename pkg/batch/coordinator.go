package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/batchfetch/pkg/backoff"
	"github.com/Sternrassler/batchfetch/pkg/checkpoint"
	"github.com/Sternrassler/batchfetch/pkg/observe"
	"github.com/Sternrassler/batchfetch/pkg/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrInterrupted is returned when the context ends mid-run. The checkpoint
// is left at the last committed batch.
var ErrInterrupted = errors.New("run interrupted")

var (
	rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_checkpoint_rollbacks_total",
		Help: "Batches whose commit failed and whose state was rolled back",
	})

	pacingSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_batch_pacing_seconds_total",
		Help: "Total time spent waiting between batches",
	})
)

// Runner executes one batch; *pool.Pool implements it.
type Runner interface {
	Run(ctx context.Context, batch int, ids []int64) (pool.Result, error)
}

// Writer persists the records of one batch covering inclusive offsets
// [start, end]; *sink.BatchWriter implements it.
type Writer interface {
	Write(start, end int, records []any) (string, error)
}

// Config holds coordinator configuration.
type Config struct {
	BatchSize int

	// Pacing yields the wait between committed batches. Defaults to a
	// constant 3s.
	Pacing backoff.Policy
}

// Summary describes what one Run did.
type Summary struct {
	TotalBatches int
	Committed    []int
	Errored      []int
	// State is the last committed state.
	State *checkpoint.State
}

// Coordinator owns the checkpoint state for the duration of a run.
type Coordinator struct {
	runner Runner
	writer Writer
	store  checkpoint.Store
	config Config
	events observe.Sink
	logger zerolog.Logger
}

// NewCoordinator validates its collaborators and returns a coordinator.
func NewCoordinator(runner Runner, writer Writer, store checkpoint.Store, cfg Config, events observe.Sink, logger zerolog.Logger) (*Coordinator, error) {
	if runner == nil || writer == nil || store == nil {
		return nil, fmt.Errorf("batch coordinator: runner, writer and store are required")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch coordinator: batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Pacing == nil {
		cfg.Pacing = backoff.Constant(3 * time.Second)
	}
	return &Coordinator{
		runner: runner,
		writer: writer,
		store:  store,
		config: cfg,
		events: observe.Or(events),
		logger: logger,
	}, nil
}

// Run processes batches resumeFrom..N-1 of ids, skipping indices already
// committed in state. state is not modified; the final committed state is
// returned in the summary. A batch-level error never stops the loop.
func (c *Coordinator) Run(ctx context.Context, ids []int64, state *checkpoint.State, resumeFrom int) (Summary, error) {
	ranges := Ranges(len(ids), c.config.BatchSize)
	committed := state.Clone()
	summary := Summary{TotalBatches: len(ranges), State: committed}

	if resumeFrom < 0 {
		resumeFrom = 0
	}
	if resumeFrom >= len(ranges) {
		return summary, nil
	}

	pacing := c.config.Pacing.NewBackOff()

	for _, r := range ranges[resumeFrom:] {
		if committed.HasCompleted(r.Index) {
			continue
		}
		if ctx.Err() != nil {
			return summary, fmt.Errorf("%w before batch %d: %w", ErrInterrupted, r.Index, context.Cause(ctx))
		}

		c.events.Emit(observe.BatchStart{
			Batch:        r.Index,
			TotalBatches: len(ranges),
			Start:        r.Start,
			End:          r.End,
		})

		started := time.Now()
		res, err := c.runner.Run(ctx, r.Index, ids[r.Start:r.End])
		if err != nil && ctx.Err() != nil {
			c.logger.Warn().
				Int("batch", r.Index).
				Msg("Batch interrupted - checkpoint left at last committed batch")
			return summary, fmt.Errorf("%w at batch %d: %w", ErrInterrupted, r.Index, err)
		}

		var next *checkpoint.State
		var path string
		if err == nil {
			next, path, err = c.commit(ctx, committed, r, res)
		}
		if err != nil {
			c.rollback(ctx, committed, r, err)
			summary.Errored = append(summary.Errored, r.Index)
			continue
		}

		committed = next
		summary.State = committed
		summary.Committed = append(summary.Committed, r.Index)

		c.events.Emit(observe.BatchCommit{
			Batch:        r.Index,
			Success:      len(res.Successes),
			Failed:       len(res.Failures),
			TotalSuccess: committed.TotalSuccess,
			TotalFailed:  committed.TotalFailed,
			Processed:    committed.TotalSuccess + committed.TotalFailed,
			TotalIDs:     len(ids),
			Duration:     time.Since(started),
			OutputPath:   path,
		})

		if pendingAfter(committed, r.Index, len(ranges)) {
			d := backoff.Next(pacing)
			if err := backoff.Sleep(ctx, d); err != nil {
				return summary, fmt.Errorf("%w after batch %d: %w", ErrInterrupted, r.Index, err)
			}
			pacingSeconds.Add(d.Seconds())
		}
	}

	return summary, nil
}

// commit writes the batch file, folds the batch into a copy of the
// committed state and saves it. The returned state is the new commit point.
func (c *Coordinator) commit(ctx context.Context, committed *checkpoint.State, r Range, res pool.Result) (*checkpoint.State, string, error) {
	var path string
	if len(res.Successes) > 0 {
		p, err := c.writer.Write(r.Start, r.Last(), res.Records())
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	next := committed.Clone()
	next.Commit(r.Index, len(res.Successes), res.Failures)
	if err := c.store.Save(ctx, next); err != nil {
		return nil, "", err
	}
	return next, path, nil
}

// pendingAfter reports whether any batch after index is still uncommitted.
func pendingAfter(s *checkpoint.State, index, total int) bool {
	for i := index + 1; i < total; i++ {
		if !s.HasCompleted(i) {
			return true
		}
	}
	return false
}

// rollback discards the batch and re-saves the last committed state.
func (c *Coordinator) rollback(ctx context.Context, committed *checkpoint.State, r Range, cause error) {
	rollbacks.Inc()
	c.events.Emit(observe.BatchError{Batch: r.Index, Err: cause})

	if err := c.store.Save(ctx, committed); err != nil {
		c.logger.Warn().
			Err(err).
			Int("batch", r.Index).
			Msg("Failed to re-save last committed checkpoint")
	}
}
