package scaling

import (
	"math"
)

// observed returns the non-NaN values.
func observed(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// mapEach applies fn to every observed value and keeps NaN in place.
func mapEach(values []float64, fn func(float64) float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = v
			continue
		}
		out[i] = fn(v)
	}
	return out
}

// nonZero replaces a degenerate scale with 1 so constant columns pass
// through centred rather than dividing by zero.
func nonZero(scale float64) float64 {
	if scale == 0 || math.Abs(scale) < 10*math.SmallestNonzeroFloat64 || math.IsNaN(scale) {
		return 1
	}
	return scale
}
