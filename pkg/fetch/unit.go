package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/batchfetch/pkg/backoff"
	"github.com/Sternrassler/batchfetch/pkg/observe"
	"github.com/Sternrassler/batchfetch/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// Record is a normalized payload. The engine never looks inside it.
type Record = any

// Normalizer turns a 200 response body into a Record.
type Normalizer interface {
	Normalize(body []byte) (Record, error)
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(body []byte) (Record, error)

// Normalize implements Normalizer.
func (f NormalizerFunc) Normalize(body []byte) (Record, error) { return f(body) }

// Outcome is the result of fetching one identifier: a Record on success, an
// error wrapping ErrRetryExhausted on failure, or an error wrapping
// ErrContextCancelled when the caller gave up.
type Outcome struct {
	ID       int64
	Record   Record
	Attempts int
	Err      error
}

// OK reports whether the fetch produced a record.
func (o Outcome) OK() bool { return o.Err == nil }

// Cancelled reports whether the fetch was abandoned because ctx ended.
func (o Outcome) Cancelled() bool { return errors.Is(o.Err, ErrContextCancelled) }

// UnitConfig holds the retry configuration for a Unit.
type UnitConfig struct {
	// RetryLimit is the number of attempts per identifier (including the first).
	RetryLimit int

	// Backoff schedules the waits between attempts.
	Backoff backoff.Policy

	// Limiter gates every attempt. Optional.
	Limiter *ratelimit.Limiter

	// Events receives one Attempt event per attempt. Optional.
	Events observe.Sink
}

// Unit fetches and normalizes single identifiers with bounded retries.
// It is safe for concurrent use.
type Unit struct {
	getter     Getter
	normalizer Normalizer
	config     UnitConfig
	events     observe.Sink
	logger     zerolog.Logger
}

// NewUnit creates a fetch unit.
func NewUnit(getter Getter, normalizer Normalizer, cfg UnitConfig, logger zerolog.Logger) (*Unit, error) {
	if getter == nil {
		return nil, fmt.Errorf("getter is required")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if cfg.RetryLimit < 1 {
		return nil, fmt.Errorf("retry limit must be >= 1 (got %d)", cfg.RetryLimit)
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.Constant(time.Second)
	}

	return &Unit{
		getter:     getter,
		normalizer: normalizer,
		config:     cfg,
		events:     observe.Or(cfg.Events),
		logger:     logger,
	}, nil
}

// Fetch runs up to RetryLimit attempts for id. It never panics and never
// returns more than one outcome per call.
func (u *Unit) Fetch(ctx context.Context, id int64) Outcome {
	schedule := u.config.Backoff.NewBackOff()

	var (
		lastErr   error
		lastClass ErrorClass
	)

	for attempt := 1; attempt <= u.config.RetryLimit; attempt++ {
		if err := u.config.Limiter.Wait(ctx); err != nil {
			return cancelled(id, attempt-1, err)
		}

		start := time.Now()
		record, status, err := u.attempt(ctx, id)
		duration := time.Since(start)

		if err == nil {
			u.events.Emit(observe.Attempt{
				ID:       id,
				Attempt:  attempt,
				Status:   status,
				Duration: duration,
				Final:    true,
			})
			if attempt > 1 {
				u.logger.Debug().
					Int64("id", id).
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			return Outcome{ID: id, Record: record, Attempts: attempt}
		}

		// A failure caused by the caller going away is not a failed attempt.
		if ctx.Err() != nil {
			return cancelled(id, attempt, ctx.Err())
		}

		lastErr = err
		lastClass = Classify(err)
		attemptErrorsTotal.WithLabelValues(string(lastClass)).Inc()

		final := attempt >= u.config.RetryLimit
		u.events.Emit(observe.Attempt{
			ID:         id,
			Attempt:    attempt,
			Status:     status,
			ErrorClass: string(lastClass),
			Err:        err,
			Duration:   duration,
			Final:      final,
		})
		if final {
			break
		}

		wait := backoff.Next(schedule)
		retriesTotal.WithLabelValues(string(lastClass)).Inc()
		retryBackoffSeconds.Observe(wait.Seconds())

		if err := backoff.Sleep(ctx, wait); err != nil {
			return cancelled(id, attempt, err)
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()

	return Outcome{
		ID:       id,
		Attempts: u.config.RetryLimit,
		Err:      fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, u.config.RetryLimit, lastErr),
	}
}

// attempt performs one GET and, on 200, normalizes the body. Panics from the
// normalizer are turned into decode errors.
func (u *Unit) attempt(ctx context.Context, id int64) (record Record, status int, err error) {
	resp, err := u.getter.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	u.config.Limiter.UpdateFromResponse(resp.StatusCode, resp.Header)

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &StatusError{
			StatusCode: resp.StatusCode,
			Class:      classifyStatus(resp.StatusCode),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			record, status = nil, resp.StatusCode
			err = &DecodeError{Err: fmt.Errorf("normalizer panic: %v", r)}
		}
	}()

	record, err = u.normalizer.Normalize(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &DecodeError{Err: err}
	}
	return record, resp.StatusCode, nil
}

func cancelled(id int64, attempts int, cause error) Outcome {
	return Outcome{
		ID:       id,
		Attempts: attempts,
		Err:      fmt.Errorf("%w: %w", ErrContextCancelled, cause),
	}
}
