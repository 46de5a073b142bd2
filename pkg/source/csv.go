// Package source reads the identifier list a run works through.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// IDColumn is the header name holding identifiers.
const IDColumn = "id"

var (
	// ErrNoIDColumn is returned when the header row has no "id" column.
	ErrNoIDColumn = errors.New("no id column in header")

	// ErrMalformedID is returned for a cell that is not an integral number.
	ErrMalformedID = errors.New("malformed id")
)

// ReadFile loads identifiers from a CSV file.
func ReadFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identifier source: %w", err)
	}
	defer f.Close()

	ids, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ids, nil
}

// Read parses a CSV stream with a header row. Blank id cells are skipped,
// integral floats such as "123.0" are accepted and order is preserved.
func Read(r io.Reader) ([]int64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoIDColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := -1
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		if strings.TrimSpace(name) == IDColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrNoIDColumn
	}

	var ids []int64
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if col >= len(rec) {
			continue
		}

		cell := strings.TrimSpace(rec[col])
		if cell == "" {
			continue
		}
		id, err := parseID(cell)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func parseID(s string) (int64, error) {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedID, s)
	}
	return int64(f), nil
}
