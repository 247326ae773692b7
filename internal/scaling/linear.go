package scaling

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Standard removes the mean and scales to unit population variance.
type Standard struct {
	WithMean bool
	WithStd  bool
}

// NewStandard centres and scales.
func NewStandard() Standard { return Standard{WithMean: true, WithStd: true} }

func (Standard) Name() string { return NameStandard }
func (Standard) sealed()      {}

func (s Standard) Transform(values []float64) ([]float64, error) {
	obs := observed(values)
	if len(obs) == 0 {
		return append([]float64(nil), values...), nil
	}
	mean, std := stat.PopMeanStdDev(obs, nil)
	if !s.WithMean {
		mean = 0
	}
	scale := 1.0
	if s.WithStd {
		scale = nonZero(std)
	}
	return mapEach(values, func(v float64) float64 { return (v - mean) / scale }), nil
}

// MinMax maps the observed range onto [Min, Max].
type MinMax struct {
	Min float64
	Max float64
}

// NewMinMax validates the target range.
func NewMinMax(min, max float64) (MinMax, error) {
	if min >= max {
		return MinMax{}, errInvalidRange(min, max)
	}
	return MinMax{Min: min, Max: max}, nil
}

func (MinMax) Name() string { return NameMinMax }
func (MinMax) sealed()      {}

func (s MinMax) Transform(values []float64) ([]float64, error) {
	obs := observed(values)
	if len(obs) == 0 {
		return append([]float64(nil), values...), nil
	}
	lo, err := stats.Min(obs)
	if err != nil {
		return nil, err
	}
	hi, err := stats.Max(obs)
	if err != nil {
		return nil, err
	}
	scale := (s.Max - s.Min) / nonZero(hi-lo)
	offset := s.Min - lo*scale
	return mapEach(values, func(v float64) float64 { return v*scale + offset }), nil
}

// MaxAbs divides by the largest absolute observed value.
type MaxAbs struct{}

func (MaxAbs) Name() string { return NameMaxAbs }
func (MaxAbs) sealed()      {}

func (MaxAbs) Transform(values []float64) ([]float64, error) {
	maxAbs := 0.0
	for _, v := range observed(values) {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	scale := nonZero(maxAbs)
	return mapEach(values, func(v float64) float64 { return v / scale }), nil
}

func errInvalidRange(min, max float64) error {
	return fmt.Errorf("minimum of desired feature range must be smaller than maximum, got (%v, %v)", min, max)
}
