// Package observe carries typed pipeline events from the engine to whatever
// wants to watch it: logs, metrics, progress bars. Sinks are advisory and
// must never block or fail the engine.
package observe

import "time"

// Kind identifies an event type.
type Kind string

const (
	KindAttempt     Kind = "attempt"
	KindProgress    Kind = "progress"
	KindBatchStart  Kind = "batch_start"
	KindBatchCommit Kind = "batch_commit"
	KindBatchError  Kind = "batch_error"
	KindRunStart    Kind = "run_start"
	KindRunComplete Kind = "run_complete"
)

// Event is implemented by every event type below.
type Event interface {
	Kind() Kind
}

// Attempt is emitted once per fetch attempt.
type Attempt struct {
	ID         int64
	Attempt    int
	Status     int
	ErrorClass string
	Err        error
	Duration   time.Duration
	// Final is set on the last attempt for an identifier, successful or not.
	Final bool
}

func (Attempt) Kind() Kind { return KindAttempt }

// OK reports whether the attempt produced a record.
func (a Attempt) OK() bool { return a.Err == nil }

// Progress reports completed vs. total identifiers inside one batch.
type Progress struct {
	Batch int
	Done  int
	Total int
}

func (Progress) Kind() Kind { return KindProgress }

// BatchStart is emitted before a batch is handed to the worker pool.
type BatchStart struct {
	Batch        int
	TotalBatches int
	Start        int
	End          int
}

func (BatchStart) Kind() Kind { return KindBatchStart }

// BatchCommit is emitted after a batch's checkpoint was saved.
type BatchCommit struct {
	Batch        int
	Success      int
	Failed       int
	TotalSuccess int
	TotalFailed  int
	Processed    int
	TotalIDs     int
	Duration     time.Duration
	// OutputPath is empty when the batch had no successes.
	OutputPath string
}

func (BatchCommit) Kind() Kind { return KindBatchCommit }

// BatchError is emitted when a batch could not be committed.
type BatchError struct {
	Batch int
	Err   error
}

func (BatchError) Kind() Kind { return KindBatchError }

// RunStart is emitted once the resume point is known.
type RunStart struct {
	RunID        string
	TotalIDs     int
	TotalBatches int
	ResumeFrom   int
	Resumed      bool
}

func (RunStart) Kind() Kind { return KindRunStart }

// RunComplete is emitted when a run reaches a terminal state.
type RunComplete struct {
	RunID            string
	Status           string
	TotalIDs         int
	TotalSuccess     int
	TotalFailed      int
	CompletedBatches int
	Duration         time.Duration
	FailedExport     string
}

func (RunComplete) Kind() Kind { return KindRunComplete }
