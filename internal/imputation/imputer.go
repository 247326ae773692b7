// Package imputation fills missing cells of a country by indicator table.
//
// Every Imputer returns a table with the same rows and columns, in the
// same order, as its input. Columns that are entirely missing are kept
// out of the fit and reattached unchanged.
package imputation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ONEcampaign/toughest-places-index/internal/countries"
	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/params"
)

// Imputer fills NaN cells.
type Imputer interface {
	Name() string
	Impute(ctx context.Context, f *frame.Frame) (*frame.Frame, error)
	sealed()
}

// Registered imputer names.
const (
	NameSimple    = "simple"
	NameIterative = "iterative"
	NameKNN       = "knn"
	NameRegion    = "region"
	NameContinent = "continent"
	NameIncome    = "income"
)

// Names lists the imputer names Parse accepts.
func Names() []string {
	return []string{NameSimple, NameIterative, NameKNN, NameRegion, NameContinent, NameIncome}
}

var groupByName = map[string]countries.Grouping{
	NameRegion:    countries.ByUNRegion,
	NameContinent: countries.ByContinent,
	NameIncome:    countries.ByIncomeLevel,
}

// Parse resolves an imputer name and its keyword parameters. Group-wise
// imputers need a classifier.
func Parse(name string, p params.Params, classifier countries.Classifier) (Imputer, error) {
	switch name {
	case NameSimple:
		s, err := parseStrategy(p)
		if err != nil {
			return nil, err
		}
		return Simple{Strategy: s}, nil

	case NameIterative:
		it := NewIterative()
		var err error
		if it.MaxIter, err = p.Int("max_iter", it.MaxIter); err != nil {
			return nil, err
		}
		if it.Tol, err = p.Float("tol", it.Tol); err != nil {
			return nil, err
		}
		if it.Alpha, err = p.Float("alpha", it.Alpha); err != nil {
			return nil, err
		}
		if it.MaxIter < 1 || it.Tol < 0 || it.Alpha < 0 {
			return nil, apperrors.NewAppValidationError(
				fmt.Sprintf("iterative imputer needs max_iter >= 1, tol >= 0 and alpha >= 0, got %d, %v, %v", it.MaxIter, it.Tol, it.Alpha))
		}
		return it, nil

	case NameKNN:
		k, err := p.Int("n_neighbors", DefaultNeighbors)
		if err != nil {
			return nil, err
		}
		return NewKNN(k)

	case NameRegion, NameContinent, NameIncome:
		if classifier == nil {
			return nil, apperrors.NewAppValidationError(fmt.Sprintf("%s imputer needs a country classifier", name))
		}
		s, err := parseStrategy(p)
		if err != nil {
			return nil, err
		}
		return Group{By: groupByName[name], Strategy: s, Classifier: classifier}, nil
	}

	return nil, apperrors.NewUnknownImputerError(name, Names())
}

// withoutAllNull runs fit on the columns that hold at least one value and
// puts the all-NaN columns back in their original positions.
func withoutAllNull(ctx context.Context, logger *slog.Logger, name string, f *frame.Frame,
	fit func(*frame.Frame) (*frame.Frame, error)) (*frame.Frame, error) {

	var keep []string
	for _, c := range f.Columns() {
		if f.AllNull(c) {
			logger.WarnContext(ctx, "column has no observed values, passing through",
				"imputer", name,
				"column", c,
			)
			continue
		}
		keep = append(keep, c)
	}

	if len(keep) == 0 {
		return f.Clone(), nil
	}

	sub, err := f.Select(keep...)
	if err != nil {
		return nil, err
	}
	filled, err := fit(sub)
	if err != nil {
		return nil, fmt.Errorf("%s imputer: %w", name, err)
	}

	out := frame.MustNew(f.Index())
	for _, c := range f.Columns() {
		src := f
		if filled.Has(c) {
			src = filled
		}
		if err := out.SetColumn(c, src.Column(c)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
