// Package batch partitions the identifier list into fixed-size batches and
// drives them one at a time through the worker pool. A batch counts as done
// only once its checkpoint is saved.
package batch

// Range is a half-open slice [Start, End) of the identifier sequence.
type Range struct {
	Index int
	Start int
	End   int
}

// Len returns the number of identifiers in the range.
func (r Range) Len() int { return r.End - r.Start }

// Last returns the inclusive end offset.
func (r Range) Last() int { return r.End - 1 }

// TotalBatches returns ceil(n/size).
func TotalBatches(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Ranges partitions n identifiers into batches of size. Only the final
// batch may be short.
func Ranges(n, size int) []Range {
	total := TotalBatches(n, size)
	out := make([]Range, 0, total)
	for i := 0; i < total; i++ {
		start := i * size
		end := min(start+size, n)
		out = append(out, Range{Index: i, Start: start, End: end})
	}
	return out
}
