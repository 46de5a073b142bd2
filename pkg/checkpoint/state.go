// Package checkpoint persists run progress so an interrupted run resumes at
// the first batch that was not committed.
package checkpoint

import (
	"encoding/json"
	"slices"
	"time"
)

// Status is the lifecycle state recorded in a checkpoint.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// NoBatch is the LastCompletedBatch value before any batch committed.
const NoBatch = -1

// State is the persisted run progress. Only the batch coordinator mutates
// it, and only after a batch fully drained.
type State struct {
	Timestamp          time.Time  `json:"timestamp"`
	LastCompletedBatch int        `json:"last_completed_batch"`
	TotalSuccess       int        `json:"total_success"`
	TotalFailed        int        `json:"total_failed"`
	FailedIDs          []int64    `json:"failed_ids"`
	CompletedBatches   []int      `json:"completed_batches"`
	Status             Status     `json:"status"`
	CompletedTimestamp *time.Time `json:"completed_timestamp,omitempty"`

	RunID     string `json:"run_id,omitempty"`
	TotalIDs  int    `json:"total_ids,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// Fresh returns the state of a run that has not committed anything.
func Fresh(runID string, totalIDs, batchSize int) *State {
	return &State{
		Timestamp:          time.Now().UTC(),
		LastCompletedBatch: NoBatch,
		FailedIDs:          []int64{},
		CompletedBatches:   []int{},
		Status:             StatusInProgress,
		RunID:              runID,
		TotalIDs:           totalIDs,
		BatchSize:          batchSize,
	}
}

// timestampLayouts are tried in order when decoding timestamps. Layouts
// without a zone are read in local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp returns the zero time when v matches no layout.
func parseTimestamp(v string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// UnmarshalJSON accepts a null last_completed_batch, missing slices and
// timestamps with or without a zone. An unparseable timestamp is dropped
// rather than failing the whole checkpoint.
func (s *State) UnmarshalJSON(data []byte) error {
	type plain State
	aux := struct {
		*plain
		LastCompletedBatch *int    `json:"last_completed_batch"`
		Timestamp          *string `json:"timestamp"`
		CompletedTimestamp *string `json:"completed_timestamp"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.Timestamp = time.Time{}
	if aux.Timestamp != nil {
		s.Timestamp, _ = parseTimestamp(*aux.Timestamp)
	}
	s.CompletedTimestamp = nil
	if aux.CompletedTimestamp != nil {
		if ts, ok := parseTimestamp(*aux.CompletedTimestamp); ok {
			s.CompletedTimestamp = &ts
		}
	}

	s.LastCompletedBatch = NoBatch
	if aux.LastCompletedBatch != nil {
		s.LastCompletedBatch = *aux.LastCompletedBatch
	}
	if s.FailedIDs == nil {
		s.FailedIDs = []int64{}
	}
	if s.CompletedBatches == nil {
		s.CompletedBatches = []int{}
	}
	if s.Status == "" {
		s.Status = StatusInProgress
	}
	return nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.FailedIDs = slices.Clone(s.FailedIDs)
	c.CompletedBatches = slices.Clone(s.CompletedBatches)
	if s.CompletedTimestamp != nil {
		ts := *s.CompletedTimestamp
		c.CompletedTimestamp = &ts
	}
	if c.FailedIDs == nil {
		c.FailedIDs = []int64{}
	}
	if c.CompletedBatches == nil {
		c.CompletedBatches = []int{}
	}
	return &c
}

// HasCompleted reports whether batch index is in CompletedBatches.
func (s *State) HasCompleted(index int) bool {
	return slices.Contains(s.CompletedBatches, index)
}

// Commit folds a drained batch into the state.
func (s *State) Commit(index, success int, failed []int64) {
	s.Timestamp = time.Now().UTC()
	s.TotalSuccess += success
	s.TotalFailed += len(failed)
	s.FailedIDs = append(s.FailedIDs, failed...)
	s.LastCompletedBatch = index
	if !s.HasCompleted(index) {
		s.CompletedBatches = append(s.CompletedBatches, index)
	}
}

// ResumeFrom returns the first batch index to process: the earlier of the
// batch after LastCompletedBatch and the first index missing from
// CompletedBatches.
func (s *State) ResumeFrom(totalBatches int) int {
	next := s.LastCompletedBatch + 1
	if next < 0 {
		next = 0
	}
	for i := 0; i < totalBatches && i < next; i++ {
		if !s.HasCompleted(i) {
			return i
		}
	}
	return next
}

// Completed reports whether the run was marked completed.
func (s *State) Completed() bool {
	return s.Status == StatusCompleted
}
