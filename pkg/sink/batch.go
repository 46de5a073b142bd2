package sink

import (
	"encoding/json"
	"fmt"
	"path/filepath"
)

// BatchWriter writes batch result files into one output directory.
type BatchWriter struct {
	Dir string
}

// NewBatchWriter creates a writer for dir.
func NewBatchWriter(dir string) *BatchWriter {
	return &BatchWriter{Dir: dir}
}

// FileName returns the batch file name for the inclusive offset range
// [start, end].
func FileName(start, end int) string {
	return fmt.Sprintf("products_%d_to_%d.json", start, end)
}

// Write stores records as a 2-space indented JSON array covering the
// inclusive offsets [start, end] and returns the file path. Rewriting the
// same batch replaces the file.
func (w *BatchWriter) Write(start, end int, records []any) (string, error) {
	if records == nil {
		records = []any{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode batch %d-%d: %w", start, end, err)
	}

	path := filepath.Join(w.Dir, FileName(start, end))
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write batch file %s: %w", path, err)
	}
	return path, nil
}
