package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Sternrassler/batchfetch/pkg/sink"
	"github.com/rs/zerolog"
)

const backendFile = "file"

// FileStore keeps the checkpoint as an indented JSON file. Saves go through
// a temp file and rename, so a crash never leaves a torn checkpoint.
type FileStore struct {
	path   string
	logger zerolog.Logger
}

// NewFileStore creates a store at path.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path returns the checkpoint file path.
func (f *FileStore) Path() string { return f.path }

// Load reads the checkpoint. A missing, unreadable or corrupt file yields
// (nil, nil).
func (f *FileStore) Load(ctx context.Context) (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			checkpointErrors.WithLabelValues(backendFile, "load").Inc()
			f.logger.Warn().Err(err).Str("path", f.path).Msg("Checkpoint unreadable - starting fresh")
		}
		return nil, nil
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		checkpointErrors.WithLabelValues(backendFile, "load").Inc()
		f.logger.Warn().Err(err).Str("path", f.path).Msg("Checkpoint corrupt - starting fresh")
		return nil, nil
	}
	return &s, nil
}

// Save writes s atomically.
func (f *FileStore) Save(ctx context.Context, s *State) error {
	if s == nil {
		return fmt.Errorf("checkpoint state cannot be nil")
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		checkpointErrors.WithLabelValues(backendFile, "save").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := sink.WriteFileAtomic(f.path, data, 0o644); err != nil {
		checkpointErrors.WithLabelValues(backendFile, "save").Inc()
		return fmt.Errorf("save checkpoint %s: %w", f.path, err)
	}

	checkpointSaves.WithLabelValues(backendFile).Inc()
	checkpointBytes.WithLabelValues(backendFile).Set(float64(len(data)))
	return nil
}

// MarkCompleted flags the stored checkpoint as completed.
func (f *FileStore) MarkCompleted(ctx context.Context) error {
	return markCompleted(ctx, f)
}

// Reset removes the checkpoint file.
func (f *FileStore) Reset(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		checkpointErrors.WithLabelValues(backendFile, "reset").Inc()
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
