package summary

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ONEcampaign/toughest-places-index/internal/frame"
)

// Bounds are the correlation limits beyond which two columns count as
// collinear. Both ends are inclusive.
type Bounds struct {
	Upper float64
	Lower float64
}

// DefaultBounds flags correlations of 0.7 and above or -0.7 and below.
var DefaultBounds = Bounds{Upper: 0.7, Lower: -0.7}

// Matrix is a square correlation table over named columns.
type Matrix struct {
	Columns []string
	Values  [][]float64
}

// At returns the correlation between two columns, NaN if either is unknown.
func (m Matrix) At(a, b string) float64 {
	i, j := -1, -1
	for k, c := range m.Columns {
		if c == a {
			i = k
		}
		if c == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return math.NaN()
	}
	return m.Values[i][j]
}

// Correlation is the Pearson correlation of every pair of columns, each
// pair computed over the rows where both are observed.
func Correlation(f *frame.Frame) Matrix {
	cols := f.Columns()
	data := make([][]float64, len(cols))
	for i, c := range cols {
		data[i] = f.Column(c)
	}

	values := make([][]float64, len(cols))
	for i := range values {
		values[i] = make([]float64, len(cols))
	}
	for i := range cols {
		for j := i; j < len(cols); j++ {
			r := pairwise(data[i], data[j])
			values[i][j], values[j][i] = r, r
		}
	}
	return Matrix{Columns: cols, Values: values}
}

func pairwise(a, b []float64) float64 {
	var x, y []float64
	for k := range a {
		if math.IsNaN(a[k]) || math.IsNaN(b[k]) {
			continue
		}
		x = append(x, a[k])
		y = append(y, b[k])
	}
	if len(x) < 2 {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// Collinearity lists, for each column, the other columns whose correlation
// with it is at or beyond the bounds. With a column name only that
// column's entry is returned.
func Collinearity(f *frame.Frame, bounds Bounds, column string) (map[string][]string, error) {
	m := Correlation(f)

	targets := m.Columns
	if column != "" {
		if !f.Has(column) {
			return nil, fmt.Errorf("column %q not in table", column)
		}
		targets = []string{column}
	}

	out := make(map[string][]string, len(targets))
	for _, target := range targets {
		related := []string{}
		for _, other := range m.Columns {
			if other == target {
				continue
			}
			r := m.At(target, other)
			if r >= bounds.Upper || r <= bounds.Lower {
				related = append(related, other)
			}
		}
		out[target] = related
	}
	return out, nil
}
