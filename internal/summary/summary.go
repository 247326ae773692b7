// Package summary computes the data-quality audits run on indicator tables
// before they are combined: missing data, zeros, outliers and collinearity.
// Audits can be run over all countries together or within each group of a
// country classification; countries the classifier cannot place are left
// out of grouped audits.
package summary

import (
	"fmt"
	"math"

	"github.com/ONEcampaign/toughest-places-index/internal/countries"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
)

// Overall is the single group of an ungrouped audit.
const Overall = "overall"

// GroupBy selects how rows are partitioned for an audit. The zero value
// keeps every row in one Overall group.
type GroupBy struct {
	By         countries.Grouping
	Classifier countries.Classifier
}

// Partition splits codes into labelled groups in first-seen order.
func (g GroupBy) Partition(codes []string) ([]string, map[string][]string, error) {
	if g.By == "" {
		return []string{Overall}, map[string][]string{Overall: append([]string(nil), codes...)}, nil
	}
	if g.By == countries.ByISOCode && g.Classifier == nil {
		order, members := countries.Groups(codes, identity(codes))
		return order, members, nil
	}
	if g.Classifier == nil {
		return nil, nil, fmt.Errorf("grouping by %s needs a country classifier", g.By)
	}
	order, members := countries.Groups(codes, g.Classifier.Classify(codes, g.By))
	return order, members, nil
}

func identity(codes []string) map[string]string {
	out := make(map[string]string, len(codes))
	for _, c := range codes {
		out[c] = c
	}
	return out
}

// round2 matches the two-decimal precision the audits report.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func share(f *frame.Frame, column string, g GroupBy, match func(float64) bool) (map[string]float64, error) {
	if !f.Has(column) {
		return nil, fmt.Errorf("column %q not in table", column)
	}
	order, members, err := g.Partition(f.Index())
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(order))
	for _, group := range order {
		codes := members[group]
		if len(codes) == 0 {
			continue
		}
		n := 0
		for _, code := range codes {
			if match(f.Value(code, column)) {
				n++
			}
		}
		out[group] = round2(float64(n) / float64(len(codes)))
	}
	return out, nil
}

// MissingByColumn is the share of missing values in a column, per group,
// rounded to two decimals.
func MissingByColumn(f *frame.Frame, column string, g GroupBy) (map[string]float64, error) {
	return share(f, column, g, math.IsNaN)
}

// Zeros is the share of exact zeros in a column, per group, rounded to two
// decimals.
func Zeros(f *frame.Frame, column string, g GroupBy) (map[string]float64, error) {
	return share(f, column, g, func(v float64) bool { return v == 0 })
}

// MissingByRow is the share of missing cells in each country's row.
func MissingByRow(f *frame.Frame) map[string]float64 {
	out := make(map[string]float64, f.Len())
	width := f.Width()
	for _, code := range f.Index() {
		if width == 0 {
			out[code] = 0
			continue
		}
		n := 0
		for _, v := range f.Row(code) {
			if math.IsNaN(v) {
				n++
			}
		}
		out[code] = float64(n) / float64(width)
	}
	return out
}

// MissingCountries lists, per group, the countries missing a value in the
// column. Groups without gaps map to an empty list.
func MissingCountries(f *frame.Frame, column string, g GroupBy) (map[string][]string, error) {
	if !f.Has(column) {
		return nil, fmt.Errorf("column %q not in table", column)
	}
	order, members, err := g.Partition(f.Index())
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(order))
	for _, group := range order {
		list := []string{}
		for _, code := range members[group] {
			if math.IsNaN(f.Value(code, column)) {
				list = append(list, code)
			}
		}
		out[group] = list
	}
	return out, nil
}
