// Package pool runs fetch units for one batch of identifiers at bounded
// concurrency. Workers hand each outcome to a single consumer, which is the
// only writer of the batch's collections.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/batchfetch/pkg/fetch"
	"github.com/Sternrassler/batchfetch/pkg/observe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrWorkerPanic marks an identifier whose fetch panicked inside the pool.
var ErrWorkerPanic = errors.New("worker panic")

var inflightFetches = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "batchfetch_pool_inflight",
	Help: "Fetch units currently executing",
})

// Fetcher is the unit of work executed per identifier.
type Fetcher interface {
	Fetch(ctx context.Context, id int64) fetch.Outcome
}

// Config holds pool configuration.
type Config struct {
	// MaxWorkers bounds concurrent fetches.
	MaxWorkers int

	// ProgressEvery emits a Progress event every N outcomes (default 100).
	ProgressEvery int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:    50,
		ProgressEvery: 100,
	}
}

// Result is the aggregated outcome of one batch.
type Result struct {
	Successes []fetch.Outcome
	Failures  []int64
}

// Records returns the success records in completion order.
func (r Result) Records() []fetch.Record {
	out := make([]fetch.Record, 0, len(r.Successes))
	for _, o := range r.Successes {
		out = append(out, o.Record)
	}
	return out
}

// Pool executes batches. Run must not be called concurrently on one Pool;
// batches are sequential by construction.
type Pool struct {
	fetcher Fetcher
	config  Config
	events  observe.Sink
	logger  zerolog.Logger

	done  atomic.Int64
	total atomic.Int64
}

// New creates a pool.
func New(fetcher Fetcher, cfg Config, events observe.Sink, logger zerolog.Logger) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultConfig().MaxWorkers
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultConfig().ProgressEvery
	}
	return &Pool{
		fetcher: fetcher,
		config:  cfg,
		events:  observe.Or(events),
		logger:  logger,
	}
}

// Progress returns completed and total identifiers of the running batch.
// It never blocks the workers.
func (p *Pool) Progress() (done, total int) {
	return int(p.done.Load()), int(p.total.Load())
}

// Run fetches every identifier in ids exactly once and returns when all
// workers have exited. If ctx ends before the batch drains, Run returns an
// error wrapping ctx.Err() and the partial result must be discarded.
func (p *Pool) Run(ctx context.Context, batch int, ids []int64) (Result, error) {
	p.done.Store(0)
	p.total.Store(int64(len(ids)))

	var res Result
	if len(ids) == 0 {
		return res, nil
	}

	workers := p.config.MaxWorkers
	if workers > len(ids) {
		workers = len(ids)
	}

	start := time.Now()
	jobs := make(chan int64)
	results := make(chan fetch.Outcome, workers)

	g, gctx := errgroup.WithContext(ctx)

	// Feed identifiers in input order.
	g.Go(func() error {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			return p.worker(gctx, workerID, jobs, results)
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(results)
	}()

	// Single consumer: the only writer of res.
	res.Successes = make([]fetch.Outcome, 0, len(ids))
	interrupted := false
	for out := range results {
		switch {
		case out.Cancelled():
			interrupted = true
			continue
		case out.OK():
			res.Successes = append(res.Successes, out)
		default:
			res.Failures = append(res.Failures, out.ID)
		}

		done := p.done.Add(1)
		if done%int64(p.config.ProgressEvery) == 0 && done < int64(len(ids)) {
			p.events.Emit(observe.Progress{Batch: batch, Done: int(done), Total: len(ids)})
		}
	}

	err := <-waitErr
	if ctx.Err() != nil {
		return res, fmt.Errorf("batch %d interrupted: %w", batch, ctx.Err())
	}
	if err != nil {
		return res, fmt.Errorf("batch %d: %w", batch, err)
	}
	if interrupted {
		return res, fmt.Errorf("batch %d interrupted: %w", batch, context.Canceled)
	}

	p.events.Emit(observe.Progress{Batch: batch, Done: len(ids), Total: len(ids)})
	p.logger.Debug().
		Int("batch", batch).
		Int("success", len(res.Successes)).
		Int("failed", len(res.Failures)).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch drained")

	return res, nil
}

// worker processes identifiers from jobs until it is closed or ctx ends.
func (p *Pool) worker(ctx context.Context, workerID int, jobs <-chan int64, results chan<- fetch.Outcome) error {
	processed := 0
	for id := range jobs {
		if err := ctx.Err(); err != nil {
			p.logger.Debug().
				Int("worker_id", workerID).
				Int("processed", processed).
				Msg("Worker stopping (context cancelled)")
			return err
		}

		results <- p.safeFetch(ctx, id)
		processed++
	}
	return nil
}

// safeFetch turns a panic inside the fetcher into a failed outcome.
func (p *Pool) safeFetch(ctx context.Context, id int64) (out fetch.Outcome) {
	inflightFetches.Inc()
	defer inflightFetches.Dec()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int64("id", id).
				Interface("panic", r).
				Msg("Fetch panicked - recording identifier as failed")
			out = fetch.Outcome{ID: id, Err: fmt.Errorf("%w: %v", ErrWorkerPanic, r)}
		}
	}()

	return p.fetcher.Fetch(ctx, id)
}
