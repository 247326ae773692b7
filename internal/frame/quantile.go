package frame

import (
	"math"
	"sort"
)

// QuantileSorted returns the p-th quantile (p in [0, 1]) of ascending data,
// interpolating linearly between the two closest ranks. NaN when empty.
func QuantileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	pos := p * float64(n-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	w := pos - float64(lower)
	return sorted[lower]*(1-w) + sorted[upper]*w
}

// Quantile is QuantileSorted over unsorted data, ignoring NaN.
func Quantile(values []float64, p float64) float64 {
	sorted := Observed(values)
	sort.Float64s(sorted)
	return QuantileSorted(sorted, p)
}
