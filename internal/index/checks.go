package index

import (
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/summary"
)

// CheckCollinearity lists, per column of the aggregate table, the other
// columns correlated at or beyond the bounds. A non-empty column limits
// the check to that column.
func (ix *Index) CheckCollinearity(bounds summary.Bounds, column string) (map[string][]string, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, err
	}
	return summary.Collinearity(data, bounds, column)
}

// CheckMissingData reports each indicator's share of missing values.
func (ix *Index) CheckMissingData(g summary.GroupBy) (map[string]map[string]float64, error) {
	return perIndicator(ix, func(f *frame.Frame) (map[string]float64, error) {
		return summary.MissingByColumn(f, ColValue, g)
	})
}

// CheckMissingCountries lists, per indicator and group, the countries with
// no value.
func (ix *Index) CheckMissingCountries(g summary.GroupBy) (map[string]map[string][]string, error) {
	return perIndicator(ix, func(f *frame.Frame) (map[string][]string, error) {
		return summary.MissingCountries(f, ColValue, g)
	})
}

// CheckMissingByCountry reports each country's share of missing cells in
// the aggregate table.
func (ix *Index) CheckMissingByCountry() (map[string]float64, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, err
	}
	return summary.MissingByRow(data), nil
}

// CheckZeros reports each indicator's share of zero values.
func (ix *Index) CheckZeros(g summary.GroupBy) (map[string]map[string]float64, error) {
	return perIndicator(ix, func(f *frame.Frame) (map[string]float64, error) {
		return summary.Zeros(f, ColValue, g)
	})
}

// CheckOutliers runs the outlier test on each indicator, within groups
// when a grouping is given.
func (ix *Index) CheckOutliers(method summary.OutlierMethod, g summary.GroupBy) (map[string][]summary.Outlier, error) {
	return perIndicator(ix, func(f *frame.Frame) ([]summary.Outlier, error) {
		return summary.DetectOutliers(f, ColValue, method, g)
	})
}

func perIndicator[T any](ix *Index, audit func(*frame.Frame) (T, error)) (map[string]T, error) {
	out := make(map[string]T)
	for _, ind := range ix.Indicators() {
		f, err := ind.current()
		if err != nil {
			return nil, err
		}
		res, err := audit(f)
		if err != nil {
			return nil, err
		}
		out[ind.name] = res
	}
	return out, nil
}
