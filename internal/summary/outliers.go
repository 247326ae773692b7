package summary

import (
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
)

// OutlierMethod is an outlier test.
type OutlierMethod string

const (
	// Empirical flags values more than three sample standard deviations
	// from the mean.
	Empirical OutlierMethod = "empirical"
	// InterQuartileRange flags values more than 1.5 IQR outside the
	// quartiles.
	InterQuartileRange OutlierMethod = "inter_quartile_range"
)

const iqrMultiplier = 1.5

// ParseOutlierMethod validates a method name.
func ParseOutlierMethod(name string) (OutlierMethod, error) {
	switch m := OutlierMethod(name); m {
	case Empirical, InterQuartileRange:
		return m, nil
	}
	methods := []string{string(Empirical), string(InterQuartileRange)}
	return "", apperrors.NewAppValidationError(
		fmt.Sprintf("outlier method %q is not available, use one of: %s", name, strings.Join(methods, ", ")))
}

// Outliers flags each value under the method. Missing values are never
// flagged, and fewer than two observations flag nothing.
func Outliers(values []float64, method OutlierMethod) ([]bool, error) {
	flags := make([]bool, len(values))
	obs := frame.Observed(values)
	if len(obs) < 2 {
		return flags, nil
	}

	var test func(float64) bool
	switch method {
	case Empirical:
		mean, err := stats.Mean(obs)
		if err != nil {
			return nil, err
		}
		std, err := stats.StandardDeviationSample(obs)
		if err != nil {
			return nil, err
		}
		test = func(v float64) bool { return math.Abs(v-mean) > 3*std }
	case InterQuartileRange:
		q25, q75 := frame.Quantile(obs, 0.25), frame.Quantile(obs, 0.75)
		iqr := q75 - q25
		lo, hi := q25-iqr*iqrMultiplier, q75+iqr*iqrMultiplier
		test = func(v float64) bool { return v < lo || v > hi }
	default:
		_, err := ParseOutlierMethod(string(method))
		return nil, err
	}

	for i, v := range values {
		flags[i] = !math.IsNaN(v) && test(v)
	}
	return flags, nil
}

// Outlier is a flagged value.
type Outlier struct {
	ISOCode string  `json:"iso_code"`
	Group   string  `json:"group"`
	Value   float64 `json:"value"`
}

// DetectOutliers runs the test on a column, separately inside each group
// when a grouping is given, and returns the flagged rows in group order.
func DetectOutliers(f *frame.Frame, column string, method OutlierMethod, g GroupBy) ([]Outlier, error) {
	if !f.Has(column) {
		return nil, fmt.Errorf("column %q not in table", column)
	}
	order, members, err := g.Partition(f.Index())
	if err != nil {
		return nil, err
	}

	out := []Outlier{}
	for _, group := range order {
		codes := members[group]
		values := make([]float64, len(codes))
		for i, code := range codes {
			values[i] = f.Value(code, column)
		}
		flags, err := Outliers(values, method)
		if err != nil {
			return nil, err
		}
		for i, flagged := range flags {
			if flagged {
				out = append(out, Outlier{ISOCode: codes[i], Group: group, Value: values[i]})
			}
		}
	}
	return out, nil
}
