package sink

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
)

// FailedFileName is the failed-identifier export written next to batch files.
const FailedFileName = "failed_product_ids.csv"

// FailedPath returns the failed-identifier CSV path inside dir.
func FailedPath(dir string) string {
	return filepath.Join(dir, FailedFileName)
}

// WriteFailedCSV writes ids, one per row, under a "failed_id" header.
func WriteFailedCSV(path string, ids []int64) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"failed_id"}); err != nil {
		return err
	}
	for _, id := range ids {
		if err := w.Write([]string{strconv.FormatInt(id, 10)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if err := WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write failed ids %s: %w", path, err)
	}
	return nil
}
