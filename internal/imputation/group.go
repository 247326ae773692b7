package imputation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/ONEcampaign/toughest-places-index/internal/countries"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
)

// Gap records a group that had no observed value for a column, so its
// missing cells in that column stayed missing.
type Gap struct {
	Group  string
	Column string
}

// Group fills missing cells with a statistic of the country's own group
// (UN region, continent or income level). Countries the classifier cannot
// place are left as they are.
type Group struct {
	By         countries.Grouping
	Strategy   Strategy
	Classifier countries.Classifier
	// Notify, when set, is called once for every Gap.
	Notify func(Gap)
	Logger *slog.Logger
}

func (g Group) Name() string {
	for name, by := range groupByName {
		if by == g.By {
			return name
		}
	}
	return string(g.By)
}

func (Group) sealed() {}

func (g Group) Impute(ctx context.Context, f *frame.Frame) (*frame.Frame, error) {
	if g.Classifier == nil {
		return nil, fmt.Errorf("%s imputer has no classifier", g.Name())
	}
	logger := loggerOr(g.Logger)

	codes := f.Index()
	labels := g.Classifier.Classify(codes, g.By)
	order, members := countries.Groups(codes, labels)

	if unplaced := len(codes) - len(labels); unplaced > 0 {
		logger.WarnContext(ctx, "countries without a group are not imputed",
			"imputer", g.Name(),
			"grouping", string(g.By),
			"count", unplaced,
		)
	}

	out := f.Clone()
	for _, group := range order {
		for _, c := range f.Columns() {
			values := make([]float64, len(members[group]))
			for i, code := range members[group] {
				values[i] = f.Value(code, c)
			}
			if len(frame.Observed(values)) == 0 {
				logger.WarnContext(ctx, "group has no observed values, leaving it missing",
					"imputer", g.Name(),
					"group", group,
					"column", c,
				)
				if g.Notify != nil {
					g.Notify(Gap{Group: group, Column: c})
				}
				continue
			}

			fill, err := g.Strategy.Fill(values)
			if err != nil {
				return nil, fmt.Errorf("group %s column %s: %w", group, c, err)
			}
			for i, code := range members[group] {
				if math.IsNaN(values[i]) {
					if err := out.Set(code, c, fill); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return out, nil
}
