package imputation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/montanaflynn/stats"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/params"
)

// Strategy is a column-wise central tendency.
type Strategy string

const (
	Median       Strategy = "median"
	Mean         Strategy = "mean"
	MostFrequent Strategy = "most_frequent"
)

func parseStrategy(p params.Params) (Strategy, error) {
	s, err := p.String("strategy", string(Median))
	if err != nil {
		return "", err
	}
	switch Strategy(s) {
	case Median, Mean, MostFrequent:
		return Strategy(s), nil
	}
	return "", apperrors.NewAppValidationError(
		fmt.Sprintf("strategy %q is not available, use one of: median, mean, most_frequent", s))
}

// Fill computes the strategy's statistic over the observed values. The
// most frequent value breaks ties by taking the smallest.
func (s Strategy) Fill(values []float64) (float64, error) {
	obs := frame.Observed(values)
	if len(obs) == 0 {
		return math.NaN(), nil
	}
	switch s {
	case Median:
		return stats.Median(obs)
	case Mean:
		return stats.Mean(obs)
	case MostFrequent:
		modes, err := stats.Mode(obs)
		if err != nil {
			return 0, err
		}
		// every value occurs once
		if len(modes) == 0 {
			return stats.Min(obs)
		}
		return stats.Min(modes)
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

// Simple fills each column independently with one statistic.
type Simple struct {
	Strategy Strategy
	Logger   *slog.Logger
}

func (Simple) Name() string { return NameSimple }
func (Simple) sealed()      {}

func (s Simple) Impute(ctx context.Context, f *frame.Frame) (*frame.Frame, error) {
	return withoutAllNull(ctx, loggerOr(s.Logger), s.Name(), f, func(sub *frame.Frame) (*frame.Frame, error) {
		out := sub.Clone()
		for _, c := range sub.Columns() {
			col := sub.Column(c)
			fill, err := s.Strategy.Fill(col)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
			for i, v := range col {
				if math.IsNaN(v) {
					col[i] = fill
				}
			}
			if err := out.SetColumn(c, col); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}
