// Package runner decides where a run starts, drives the batch coordinator
// and produces the final report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/batchfetch/pkg/batch"
	"github.com/Sternrassler/batchfetch/pkg/checkpoint"
	"github.com/Sternrassler/batchfetch/pkg/observe"
	"github.com/Sternrassler/batchfetch/pkg/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status is the terminal state of a run.
type Status string

const (
	// StatusCompleted means every batch committed and the checkpoint was
	// marked completed.
	StatusCompleted Status = "completed"

	// StatusPartial means the loop finished but at least one batch errored;
	// the next run retries it.
	StatusPartial Status = "partial"

	// StatusInterrupted means the run was cancelled.
	StatusInterrupted Status = "interrupted"
)

// Coordinator runs batches; *batch.Coordinator implements it.
type Coordinator interface {
	Run(ctx context.Context, ids []int64, state *checkpoint.State, resumeFrom int) (batch.Summary, error)
}

// Config holds controller configuration.
type Config struct {
	BatchSize int

	// FailedPath is where failed identifiers are exported. Empty disables
	// the export.
	FailedPath string
}

// Report summarizes a finished run.
type Report struct {
	RunID            string
	Status           Status
	TotalIDs         int
	TotalBatches     int
	TotalSuccess     int
	TotalFailed      int
	CompletedBatches int
	ErroredBatches   []int
	ResumedFrom      int
	Resumed          bool
	FailedExport     string
	Duration         time.Duration
}

// SuccessRate returns successes as a percentage of all identifiers.
func (r Report) SuccessRate() float64 { return rate(r.TotalSuccess, r.TotalIDs) }

// FailureRate returns failures as a percentage of all identifiers.
func (r Report) FailureRate() float64 { return rate(r.TotalFailed, r.TotalIDs) }

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Controller owns one run from checkpoint load to final report.
type Controller struct {
	coordinator Coordinator
	store       checkpoint.Store
	config      Config
	events      observe.Sink
	logger      zerolog.Logger
}

// New creates a controller.
func New(coordinator Coordinator, store checkpoint.Store, cfg Config, events observe.Sink, logger zerolog.Logger) *Controller {
	return &Controller{
		coordinator: coordinator,
		store:       store,
		config:      cfg,
		events:      observe.Or(events),
		logger:      logger,
	}
}

// Run processes ids, resuming from the stored checkpoint when it belongs to
// an unfinished run. On interruption it returns the report together with an
// error wrapping batch.ErrInterrupted.
func (c *Controller) Run(ctx context.Context, ids []int64) (Report, error) {
	started := time.Now()
	total := batch.TotalBatches(len(ids), c.config.BatchSize)

	stored, err := c.store.Load(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load checkpoint: %w", err)
	}

	state, resumeFrom, resumed := c.resumePoint(stored, len(ids), total)

	report := Report{
		RunID:        state.RunID,
		TotalIDs:     len(ids),
		TotalBatches: total,
		ResumedFrom:  resumeFrom,
		Resumed:      resumed,
	}

	c.events.Emit(observe.RunStart{
		RunID:        state.RunID,
		TotalIDs:     len(ids),
		TotalBatches: total,
		ResumeFrom:   resumeFrom,
		Resumed:      resumed,
	})

	summary, runErr := c.coordinator.Run(ctx, ids, state, resumeFrom)
	final := summary.State
	if final == nil {
		final = state
	}

	report.TotalSuccess = final.TotalSuccess
	report.TotalFailed = final.TotalFailed
	report.CompletedBatches = len(final.CompletedBatches)
	report.ErroredBatches = summary.Errored

	switch {
	case errors.Is(runErr, batch.ErrInterrupted):
		report.Status = StatusInterrupted
	case runErr != nil:
		return report, runErr
	case allCompleted(final, total):
		if err := c.store.MarkCompleted(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Failed to mark checkpoint completed")
			report.Status = StatusPartial
		} else {
			report.Status = StatusCompleted
		}
	default:
		report.Status = StatusPartial
	}

	if report.Status != StatusInterrupted {
		report.FailedExport = c.exportFailed(final.FailedIDs)
	}

	report.Duration = time.Since(started)
	c.events.Emit(observe.RunComplete{
		RunID:            report.RunID,
		Status:           string(report.Status),
		TotalIDs:         report.TotalIDs,
		TotalSuccess:     report.TotalSuccess,
		TotalFailed:      report.TotalFailed,
		CompletedBatches: report.CompletedBatches,
		Duration:         report.Duration,
		FailedExport:     report.FailedExport,
	})

	return report, runErr
}

// resumePoint picks the starting state. A missing or completed checkpoint,
// or one written with a different batch size, starts a fresh run.
func (c *Controller) resumePoint(stored *checkpoint.State, totalIDs, totalBatches int) (*checkpoint.State, int, bool) {
	fresh := func() (*checkpoint.State, int, bool) {
		return checkpoint.Fresh(uuid.NewString(), totalIDs, c.config.BatchSize), 0, false
	}

	switch {
	case stored == nil:
		c.logger.Info().Msg("No checkpoint found - starting fresh run")
		return fresh()
	case stored.Completed():
		c.logger.Info().Msg("Previous run completed - starting fresh run")
		return fresh()
	case stored.BatchSize != 0 && stored.BatchSize != c.config.BatchSize:
		c.logger.Warn().
			Int("checkpoint_batch_size", stored.BatchSize).
			Int("batch_size", c.config.BatchSize).
			Msg("Checkpoint batch size differs - starting fresh run")
		return fresh()
	}

	if stored.TotalIDs != 0 && stored.TotalIDs != totalIDs {
		c.logger.Warn().
			Int("checkpoint_total_ids", stored.TotalIDs).
			Int("total_ids", totalIDs).
			Msg("Identifier count changed since checkpoint")
	}

	state := stored.Clone()
	if state.RunID == "" {
		state.RunID = uuid.NewString()
	}
	state.TotalIDs = totalIDs
	state.BatchSize = c.config.BatchSize

	resumeFrom := state.ResumeFrom(totalBatches)
	c.logger.Info().
		Str("run_id", state.RunID).
		Int("resume_from", resumeFrom).
		Int("completed_batches", len(state.CompletedBatches)).
		Msg("Resuming from checkpoint")
	return state, resumeFrom, true
}

// exportFailed writes the failed-identifier CSV and returns its path, or ""
// when there is nothing to export or the write failed.
func (c *Controller) exportFailed(ids []int64) string {
	if len(ids) == 0 || c.config.FailedPath == "" {
		return ""
	}
	if err := sink.WriteFailedCSV(c.config.FailedPath, ids); err != nil {
		c.logger.Error().Err(err).Msg("Failed to export failed identifiers")
		return ""
	}
	return c.config.FailedPath
}

func allCompleted(s *checkpoint.State, total int) bool {
	for i := 0; i < total; i++ {
		if !s.HasCompleted(i) {
			return false
		}
	}
	return true
}
