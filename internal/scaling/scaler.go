// Package scaling implements the per-indicator rescaling transforms.
//
// Every Scaler is a closed variant: Standard, MinMax, MaxAbs, Robust,
// Quantile or Power. A Scaler fits on the observed (non-NaN) values of a
// single column and returns a column of the same length, in the same row
// order, with NaN cells left as NaN.
//
// Names coming from configuration are turned into variants once by Parse.
package scaling

import (
	"fmt"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/params"
)

// Scaler is a column transform.
type Scaler interface {
	Name() string
	Transform(values []float64) ([]float64, error)
	sealed()
}

// Registered scaler names.
const (
	NameStandard = "standard"
	NameMinMax   = "minmax"
	NameMaxAbs   = "maxabs"
	NameRobust   = "robust"
	NameQuantile = "quantile"
	NamePower    = "power"
)

// Names lists the scaler names Parse accepts.
func Names() []string {
	return []string{NameStandard, NameMinMax, NameMaxAbs, NameRobust, NameQuantile, NamePower}
}

// Parse resolves a scaler name and its keyword parameters into a variant.
// Parameter names are snake_case, as written in the YAML configuration.
func Parse(name string, p params.Params) (Scaler, error) {
	switch name {
	case NameStandard:
		s := NewStandard()
		var err error
		if s.WithMean, err = p.Bool("with_mean", true); err != nil {
			return nil, err
		}
		if s.WithStd, err = p.Bool("with_std", true); err != nil {
			return nil, err
		}
		return s, nil

	case NameMinMax:
		r, err := p.FloatPair("feature_range", [2]float64{0, 1})
		if err != nil {
			return nil, err
		}
		return NewMinMax(r[0], r[1])

	case NameMaxAbs:
		return MaxAbs{}, nil

	case NameRobust:
		s := NewRobust()
		var err error
		if s.WithCentering, err = p.Bool("with_centering", true); err != nil {
			return nil, err
		}
		if s.WithScaling, err = p.Bool("with_scaling", true); err != nil {
			return nil, err
		}
		if s.UnitVariance, err = p.Bool("unit_variance", false); err != nil {
			return nil, err
		}
		if s.QuantileRange, err = p.FloatPair("quantile_range", s.QuantileRange); err != nil {
			return nil, err
		}
		if s.QuantileRange[0] < 0 || s.QuantileRange[1] > 100 || s.QuantileRange[0] > s.QuantileRange[1] {
			return nil, fmt.Errorf("invalid quantile_range %v", s.QuantileRange)
		}
		return s, nil

	case NameQuantile:
		n, err := p.Int("n_quantiles", DefaultQuantiles)
		if err != nil {
			return nil, err
		}
		out, err := p.String("output_distribution", string(Uniform))
		if err != nil {
			return nil, err
		}
		return NewQuantile(n, Distribution(out))

	case NamePower:
		method, err := p.String("method", "yeo-johnson")
		if err != nil {
			return nil, err
		}
		if method != "yeo-johnson" {
			return nil, fmt.Errorf("power transform method %q is not supported", method)
		}
		standardize, err := p.Bool("standardize", true)
		if err != nil {
			return nil, err
		}
		return Power{Standardize: standardize}, nil
	}

	return nil, apperrors.NewUnknownScalerError(name, Names())
}

// Apply runs a scaler and checks it kept the column length.
func Apply(s Scaler, values []float64) ([]float64, error) {
	out, err := s.Transform(values)
	if err != nil {
		return nil, fmt.Errorf("%s scaler: %w", s.Name(), err)
	}
	if len(out) != len(values) {
		return nil, fmt.Errorf("%s scaler returned %d values for %d", s.Name(), len(out), len(values))
	}
	return out, nil
}
