package scaling

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ONEcampaign/toughest-places-index/internal/frame"
)

// Distribution is the target distribution of a Quantile transform.
type Distribution string

const (
	Uniform Distribution = "uniform"
	Normal  Distribution = "normal"
)

// DefaultQuantiles is the number of landmarks a Quantile transform uses
// unless configured otherwise.
const DefaultQuantiles = 200

// boundsThreshold keeps normal output finite at the extremes.
const boundsThreshold = 1e-7

// Quantile maps values through their empirical CDF, estimated on a grid of
// Quantiles landmarks, onto a uniform or standard normal distribution.
type Quantile struct {
	Quantiles int
	Output    Distribution
}

// NewQuantile validates the landmark count and output distribution.
func NewQuantile(n int, output Distribution) (Quantile, error) {
	if n <= 0 {
		return Quantile{}, fmt.Errorf("n_quantiles must be strictly positive, got %d", n)
	}
	if output != Uniform && output != Normal {
		return Quantile{}, fmt.Errorf("output_distribution must be %q or %q, got %q", Uniform, Normal, output)
	}
	return Quantile{Quantiles: n, Output: output}, nil
}

func (Quantile) Name() string { return NameQuantile }
func (Quantile) sealed()      {}

func (s Quantile) Transform(values []float64) ([]float64, error) {
	obs := observed(values)
	if len(obs) == 0 {
		return append([]float64(nil), values...), nil
	}
	sort.Float64s(obs)

	// the landmark count is capped by the number of rows, missing included
	n := s.Quantiles
	if n <= 0 {
		n = DefaultQuantiles
	}
	if n > len(values) {
		n = len(values)
	}
	refs := make([]float64, n)
	landmarks := make([]float64, n)
	for i := range refs {
		if n > 1 {
			refs[i] = float64(i) / float64(n-1)
		}
		landmarks[i] = frame.QuantileSorted(obs, refs[i])
		if i > 0 && landmarks[i] < landmarks[i-1] {
			landmarks[i] = landmarks[i-1]
		}
	}

	// mirrored copies for the backward interpolation
	negLandmarks := make([]float64, n)
	negRefs := make([]float64, n)
	for i := range landmarks {
		negLandmarks[i] = -landmarks[n-1-i]
		negRefs[i] = -refs[n-1-i]
	}

	lowerX, upperX := landmarks[0], landmarks[n-1]
	clipMin := distuv.UnitNormal.Quantile(boundsThreshold - epsilon)
	clipMax := distuv.UnitNormal.Quantile(1 - (boundsThreshold - epsilon))

	return mapEach(values, func(v float64) float64 {
		var atLower, atUpper bool
		if s.Output == Normal {
			atLower = v-boundsThreshold < lowerX
			atUpper = v+boundsThreshold > upperX
		} else {
			atLower = v == lowerX
			atUpper = v == upperX
		}

		u := 0.5 * (interp(v, landmarks, refs) - interp(-v, negLandmarks, negRefs))
		if atUpper {
			u = 1
		}
		if atLower {
			u = 0
		}

		if s.Output == Normal {
			return math.Min(math.Max(distuv.UnitNormal.Quantile(u), clipMin), clipMax)
		}
		return u
	}), nil
}

// epsilon is the spacing of 1.0.
var epsilon = math.Nextafter(1, 2) - 1

// interp is one-dimensional piecewise linear interpolation over
// non-decreasing xp, clamped to fp's end values outside the range. With
// repeated xp values the right-most match wins.
func interp(x float64, xp, fp []float64) float64 {
	n := len(xp)
	// j is the last position with xp[j] <= x
	j := sort.Search(n, func(i int) bool { return xp[i] > x }) - 1
	switch {
	case j < 0:
		return fp[0]
	case j >= n-1:
		return fp[n-1]
	case xp[j] == x:
		return fp[j]
	}
	slope := (fp[j+1] - fp[j]) / (xp[j+1] - xp[j])
	return slope*(x-xp[j]) + fp[j]
}
