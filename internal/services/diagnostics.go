package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ONEcampaign/toughest-places-index/internal/countries"
	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/index"
	"github.com/ONEcampaign/toughest-places-index/internal/summary"
)

// Check names a diagnostic.
type Check string

const (
	CheckCollinearity Check = "collinearity"
	CheckMissing      Check = "missing"
	CheckZeros        Check = "zeros"
	CheckOutliers     Check = "outliers"
	CheckPCA          Check = "pca"
)

// Checks lists every diagnostic in the order Diagnose runs them.
var Checks = []Check{CheckCollinearity, CheckMissing, CheckZeros, CheckOutliers, CheckPCA}

// ParseCheck validates a diagnostic name.
func ParseCheck(name string) (Check, error) {
	if c := Check(name); slices.Contains(Checks, c) {
		return c, nil
	}
	return "", apperrors.NewAppError(apperrors.ErrTypeValidation,
		fmt.Sprintf("diagnostic %q is not available", name), ErrUnknownCheck)
}

// DiagnosticsRequest selects checks and overrides the configured grouping.
type DiagnosticsRequest struct {
	// Checks to run, all of them when empty.
	Checks []Check
	// Grouping for the missing, zeros and outlier audits. Empty uses the
	// configured grouping; "overall" forces a single group.
	Grouping string
	// Column restricts the collinearity check to one indicator.
	Column string
}

// DiagnosticsReport holds the results of the checks that were run.
type DiagnosticsReport struct {
	Grouping     string                        `json:"grouping"`
	Collinearity map[string][]string           `json:"collinearity,omitempty"`
	Missing      map[string]map[string]float64 `json:"missing,omitempty"`
	// MissingCountries names, per indicator and group, the countries
	// without a value. MissingByCountry is each country's share of gaps
	// across all indicators.
	MissingCountries map[string]map[string][]string `json:"missing_countries,omitempty"`
	MissingByCountry map[string]float64             `json:"missing_by_country,omitempty"`
	Zeros            map[string]map[string]float64  `json:"zeros,omitempty"`
	Outliers         map[string][]summary.Outlier   `json:"outliers,omitempty"`
	PCA              *index.PCAResult               `json:"pca,omitempty"`
}

// Diagnose runs the data-quality audits over the indicators as loaded.
// Principal components are computed after the configured scaler and
// imputer, since they need complete rows.
func (s *IndexService) Diagnose(ctx context.Context, req DiagnosticsRequest) (*DiagnosticsReport, error) {
	ctx, span := s.tracer.Start(ctx, "IndexService.Diagnose")
	defer span.End()

	start := time.Now()
	rep, err := s.diagnose(ctx, req)
	s.metrics.RecordRun(ctx, "diagnose", time.Since(start), err)
	if err != nil {
		s.logger.ErrorContext(ctx, "diagnostics failed", "error", err)
		return nil, err
	}
	return rep, nil
}

func (s *IndexService) diagnose(ctx context.Context, req DiagnosticsRequest) (*DiagnosticsReport, error) {
	checks := req.Checks
	if len(checks) == 0 {
		checks = Checks
	}
	group, err := s.groupBy(req.Grouping)
	if err != nil {
		return nil, err
	}
	method, err := summary.ParseOutlierMethod(s.cfg.Diagnostics.OutlierMethod)
	if err != nil {
		return nil, err
	}
	bounds := summary.Bounds{Upper: s.cfg.Diagnostics.CollinearityHigh, Lower: s.cfg.Diagnostics.CollinearityLow}

	ix, err := s.Build(ctx)
	if err != nil {
		return nil, err
	}

	rep := &DiagnosticsReport{Grouping: summary.Overall}
	if group.By != "" {
		rep.Grouping = string(group.By)
	}
	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch c {
		case CheckCollinearity:
			rep.Collinearity, err = ix.CheckCollinearity(bounds, req.Column)
		case CheckMissing:
			if rep.Missing, err = ix.CheckMissingData(group); err != nil {
				break
			}
			if rep.MissingCountries, err = ix.CheckMissingCountries(group); err != nil {
				break
			}
			rep.MissingByCountry, err = ix.CheckMissingByCountry()
		case CheckZeros:
			rep.Zeros, err = ix.CheckZeros(group)
		case CheckOutliers:
			rep.Outliers, err = ix.CheckOutliers(method, group)
		case CheckPCA:
			rep.PCA, err = s.pca(ctx)
		default:
			_, err = ParseCheck(string(c))
		}
		if err != nil {
			return nil, fmt.Errorf("%s check: %w", c, err)
		}
	}
	return rep, nil
}

func (s *IndexService) groupBy(name string) (summary.GroupBy, error) {
	if name == "" {
		name = s.cfg.Diagnostics.Grouping
	}
	if name == "" || name == summary.Overall {
		return summary.GroupBy{}, nil
	}
	by, err := countries.ParseGrouping(name)
	if err != nil {
		return summary.GroupBy{}, err
	}
	reg, err := s.Registry()
	if err != nil {
		return summary.GroupBy{}, err
	}
	return summary.GroupBy{By: by, Classifier: reg}, nil
}

func (s *IndexService) pca(ctx context.Context) (*index.PCAResult, error) {
	ix, err := s.Build(ctx)
	if err != nil {
		return nil, err
	}
	scaler, err := s.Scaler()
	if err != nil {
		return nil, err
	}
	if scaler != nil {
		if err := ix.Rescale(scaler); err != nil {
			return nil, err
		}
	}
	imputer, err := s.Imputer()
	if err != nil {
		return nil, err
	}
	if imputer != nil {
		if err := ix.ImputeMissingData(ctx, imputer); err != nil {
			return nil, err
		}
	}
	return ix.PCALoadings()
}
