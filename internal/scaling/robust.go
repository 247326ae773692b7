package scaling

import (
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ONEcampaign/toughest-places-index/internal/frame"
)

// Robust centres on the median and scales by an inter-quantile range.
type Robust struct {
	WithCentering bool
	WithScaling   bool
	UnitVariance  bool
	// QuantileRange holds the lower and upper percentiles, 0-100.
	QuantileRange [2]float64
}

// NewRobust uses the median and the 25-75 inter-quartile range.
func NewRobust() Robust {
	return Robust{WithCentering: true, WithScaling: true, QuantileRange: [2]float64{25, 75}}
}

func (Robust) Name() string { return NameRobust }
func (Robust) sealed()      {}

func (s Robust) Transform(values []float64) ([]float64, error) {
	obs := observed(values)
	if len(obs) == 0 {
		return append([]float64(nil), values...), nil
	}

	center := 0.0
	if s.WithCentering {
		m, err := stats.Median(obs)
		if err != nil {
			return nil, err
		}
		center = m
	}

	scale := 1.0
	if s.WithScaling {
		sort.Float64s(obs)
		lo, hi := s.QuantileRange[0]/100, s.QuantileRange[1]/100
		scale = frame.QuantileSorted(obs, hi) - frame.QuantileSorted(obs, lo)
		if s.UnitVariance {
			scale /= distuv.UnitNormal.Quantile(hi) - distuv.UnitNormal.Quantile(lo)
		}
		scale = nonZero(scale)
	}

	return mapEach(values, func(v float64) float64 { return (v - center) / scale }), nil
}
