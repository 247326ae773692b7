// Package frame holds the country-indexed numeric tables that flow through
// the index pipeline. Rows are keyed by ISO-3166 alpha-3 code, columns by
// indicator name, and NaN marks a missing value.
package frame

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
)

// Frame is an ordered country axis by ordered float columns.
type Frame struct {
	index   []string
	pos     map[string]int
	columns []string
	values  map[string][]float64
}

// New returns an empty frame over the given country codes. Codes must be unique.
func New(index []string) (*Frame, error) {
	f := &Frame{
		index:  make([]string, 0, len(index)),
		pos:    make(map[string]int, len(index)),
		values: make(map[string][]float64),
	}
	for _, code := range index {
		if _, ok := f.pos[code]; ok {
			return nil, apperrors.NewDuplicateKeyError("frame index", code)
		}
		f.pos[code] = len(f.index)
		f.index = append(f.index, code)
	}
	return f, nil
}

// MustNew is New for literal fixtures; it panics on a duplicate code.
func MustNew(index []string) *Frame {
	f, err := New(index)
	if err != nil {
		panic(err)
	}
	return f
}

// Index returns a copy of the country axis.
func (f *Frame) Index() []string {
	return append([]string(nil), f.index...)
}

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Len is the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Width is the number of columns.
func (f *Frame) Width() int { return len(f.columns) }

// Has reports whether the column exists.
func (f *Frame) Has(column string) bool {
	_, ok := f.values[column]
	return ok
}

// Position returns the row number of a country code.
func (f *Frame) Position(code string) (int, bool) {
	i, ok := f.pos[code]
	return i, ok
}

// Column returns a copy of a column's values, or nil if it does not exist.
func (f *Frame) Column(column string) []float64 {
	v, ok := f.values[column]
	if !ok {
		return nil
	}
	return append([]float64(nil), v...)
}

// SetColumn adds or replaces a column. New columns go to the right.
func (f *Frame) SetColumn(column string, values []float64) error {
	if len(values) != len(f.index) {
		return fmt.Errorf("column %q has %d values for %d rows", column, len(values), len(f.index))
	}
	if _, ok := f.values[column]; !ok {
		f.columns = append(f.columns, column)
	}
	f.values[column] = append([]float64(nil), values...)
	return nil
}

// DropColumn removes a column if present.
func (f *Frame) DropColumn(column string) {
	if _, ok := f.values[column]; !ok {
		return
	}
	delete(f.values, column)
	for i, c := range f.columns {
		if c == column {
			f.columns = append(f.columns[:i], f.columns[i+1:]...)
			break
		}
	}
}

// Value returns a single cell; unknown rows or columns read as NaN.
func (f *Frame) Value(code, column string) float64 {
	i, ok := f.pos[code]
	if !ok {
		return math.NaN()
	}
	col, ok := f.values[column]
	if !ok {
		return math.NaN()
	}
	return col[i]
}

// Set writes a single cell. The row and column must exist.
func (f *Frame) Set(code, column string, v float64) error {
	i, ok := f.pos[code]
	if !ok {
		return fmt.Errorf("row %q not in frame", code)
	}
	col, ok := f.values[column]
	if !ok {
		return fmt.Errorf("column %q not in frame", column)
	}
	col[i] = v
	return nil
}

// Row returns the values of one country in column order.
func (f *Frame) Row(code string) []float64 {
	i, ok := f.pos[code]
	if !ok {
		return nil
	}
	out := make([]float64, len(f.columns))
	for j, c := range f.columns {
		out[j] = f.values[c][i]
	}
	return out
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		index:   f.Index(),
		pos:     make(map[string]int, len(f.pos)),
		columns: f.Columns(),
		values:  make(map[string][]float64, len(f.values)),
	}
	for k, v := range f.pos {
		out.pos[k] = v
	}
	for k, v := range f.values {
		out.values[k] = append([]float64(nil), v...)
	}
	return out
}

// Select returns a new frame holding only the named columns, in the order given.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	out := MustNew(f.index)
	for _, c := range columns {
		v, ok := f.values[c]
		if !ok {
			return nil, fmt.Errorf("column %q not in frame", c)
		}
		if err := out.SetColumn(c, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Reindex conforms the frame to a new country axis. Codes not present
// before become all-NaN rows; codes not in the new axis are dropped.
func (f *Frame) Reindex(index []string) (*Frame, error) {
	out, err := New(index)
	if err != nil {
		return nil, err
	}
	for _, c := range f.columns {
		src := f.values[c]
		dst := make([]float64, len(index))
		for i, code := range index {
			if j, ok := f.pos[code]; ok {
				dst[i] = src[j]
			} else {
				dst[i] = math.NaN()
			}
		}
		out.columns = append(out.columns, c)
		out.values[c] = dst
	}
	return out, nil
}

// OuterJoin aligns frames on the union of their country axes, in
// first-seen order, and concatenates their columns. Column names must
// not repeat across frames.
func OuterJoin(frames ...*Frame) (*Frame, error) {
	var index []string
	seen := make(map[string]struct{})
	for _, f := range frames {
		for _, code := range f.index {
			if _, ok := seen[code]; !ok {
				seen[code] = struct{}{}
				index = append(index, code)
			}
		}
	}

	out := MustNew(index)
	for _, f := range frames {
		aligned, err := f.Reindex(index)
		if err != nil {
			return nil, err
		}
		for _, c := range aligned.columns {
			if out.Has(c) {
				return nil, apperrors.NewDuplicateKeyError("joined columns", c)
			}
			out.columns = append(out.columns, c)
			out.values[c] = aligned.values[c]
		}
	}
	return out, nil
}

// RowMeans averages each row over its non-NaN cells. A row with no
// observed cells averages to NaN.
func (f *Frame) RowMeans() []float64 {
	out := make([]float64, len(f.index))
	for i := range f.index {
		sum, n := 0.0, 0
		for _, c := range f.columns {
			if v := f.values[c][i]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(n)
	}
	return out
}

// SortBy returns a copy with rows ordered by the column, descending, NaN
// last. Ties keep their current order.
func (f *Frame) SortBy(column string) (*Frame, error) {
	col, ok := f.values[column]
	if !ok {
		return nil, fmt.Errorf("column %q not in frame", column)
	}
	order := make([]int, len(f.index))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := col[order[a]], col[order[b]]
		if math.IsNaN(va) {
			return false
		}
		if math.IsNaN(vb) {
			return true
		}
		return va > vb
	})

	index := make([]string, len(order))
	for i, j := range order {
		index[i] = f.index[j]
	}
	return f.Reindex(index)
}

// Round returns a copy with every value rounded half away from zero.
func (f *Frame) Round(decimals int) *Frame {
	out := f.Clone()
	p := math.Pow(10, float64(decimals))
	for _, c := range out.columns {
		for i, v := range out.values[c] {
			if !math.IsNaN(v) {
				out.values[c][i] = math.Round(v*p) / p
			}
		}
	}
	return out
}

// NullCount returns the number of NaN cells in a column.
func (f *Frame) NullCount(column string) int {
	n := 0
	for _, v := range f.values[column] {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// AllNull reports whether every cell in a column is NaN. Empty columns count.
func (f *Frame) AllNull(column string) bool {
	return f.NullCount(column) == len(f.index)
}

// IsNull is the null test used across the pipeline.
func IsNull(v float64) bool { return math.IsNaN(v) }

// Observed returns the non-NaN values of a slice.
func Observed(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
