package index

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ONEcampaign/toughest-places-index/internal/countries"
	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/imputation"
	"github.com/ONEcampaign/toughest-places-index/internal/scaling"
)

// DefaultStabilityShare is the share of countries withheld when none are named.
const DefaultStabilityShare = 0.1

// StabilityOptions configures TestStability.
type StabilityOptions struct {
	// Countries to withhold. When empty, a random Share of the index's
	// countries is drawn.
	Countries []string
	Share     float64
	Seed      uint64

	Scaler     scaling.Scaler
	Classifier countries.Classifier
	// Strategy used inside each income group, median by default.
	Strategy imputation.Strategy
}

// RankShift compares one country's position with and without its own data.
type RankShift struct {
	ISOCode        string  `json:"iso_code"`
	Withheld       bool    `json:"withheld"`
	BaselineRank   int     `json:"baseline_rank"`
	PerturbedRank  int     `json:"perturbed_rank"`
	Shift          int     `json:"shift"`
	BaselineScore  float64 `json:"baseline_score"`
	PerturbedScore float64 `json:"perturbed_score"`
	// ScoreChangePct is NaN when the baseline score is zero.
	ScoreChangePct float64 `json:"score_change_pct"`
}

// StabilityReport is the result of TestStability.
type StabilityReport struct {
	Withheld  []string     `json:"withheld"`
	Shifts    []RankShift  `json:"shifts"`
	Baseline  *frame.Frame `json:"-"`
	Perturbed *Index       `json:"-"`
}

// TestStability withholds countries' values, imputes them from their
// income group, and reports how far every country's rank moves against an
// unperturbed run with the same settings. The receiver is not modified.
func (ix *Index) TestStability(ctx context.Context, opts StabilityOptions) (*StabilityReport, error) {
	if opts.Classifier == nil {
		return nil, apperrors.NewAppValidationError("stability testing needs a country classifier")
	}
	if opts.Strategy == "" {
		opts.Strategy = imputation.Median
	}
	if opts.Share <= 0 {
		opts.Share = DefaultStabilityShare
	}

	ctx, span := ix.tracer.Start(ctx, "index.TestStability")
	defer span.End()

	all, err := ix.Data()
	if err != nil {
		return nil, err
	}
	withheld := opts.Countries
	if len(withheld) == 0 {
		withheld = sample(all.Index(), opts.Share, opts.Seed)
	}
	span.SetAttributes(attribute.Int("withheld", len(withheld)))

	imputer := imputation.Group{
		By:         countries.ByIncomeLevel,
		Strategy:   opts.Strategy,
		Classifier: opts.Classifier,
		Logger:     ix.logger,
	}
	run := ComputeOptions{Scaler: opts.Scaler, Imputer: imputer, Summarize: true}

	baseline := ix.Clone()
	baseScores, err := baseline.Compute(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("baseline run: %w", err)
	}

	perturbed := ix.Clone()
	perturbed.withhold(withheld)
	pertScores, err := perturbed.Compute(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("perturbed run: %w", err)
	}

	isWithheld := make(map[string]bool, len(withheld))
	for _, c := range withheld {
		isWithheld[c] = true
	}

	var shifts []RankShift
	replaced := 0
	for rank, code := range baseScores.Index() {
		pRank, ok := pertScores.Position(code)
		if !ok {
			continue
		}
		base := baseScores.Value(code, ScoreColumn)
		pert := pertScores.Value(code, ScoreColumn)
		change := (pert - base) / base * 100
		if math.IsInf(change, 0) {
			change = nan
			replaced++
		}
		shifts = append(shifts, RankShift{
			ISOCode:        code,
			Withheld:       isWithheld[code],
			BaselineRank:   rank + 1,
			PerturbedRank:  pRank + 1,
			Shift:          pRank - rank,
			BaselineScore:  base,
			PerturbedScore: pert,
			ScoreChangePct: change,
		})
	}
	if replaced > 0 {
		ix.logger.WarnContext(ctx, "infinite percentage differences replaced by null",
			"operation", "stability",
			"count", replaced,
		)
	}

	ix.logger.InfoContext(ctx, "stability test complete",
		"withheld", len(withheld),
		"countries", len(shifts),
	)
	return &StabilityReport{
		Withheld:  append([]string(nil), withheld...),
		Shifts:    shifts,
		Baseline:  baseScores,
		Perturbed: perturbed,
	}, nil
}

// MaxAbsShift is the largest rank displacement in the report.
func (r *StabilityReport) MaxAbsShift() int {
	out := 0
	for _, s := range r.Shifts {
		if s.Shift > out {
			out = s.Shift
		} else if -s.Shift > out {
			out = -s.Shift
		}
	}
	return out
}

// sample draws round(share*n), at least one, codes without replacement and
// returns them in their original order.
func sample(codes []string, share float64, seed uint64) []string {
	if len(codes) == 0 {
		return nil
	}
	k := int(math.Round(share * float64(len(codes))))
	if k < 1 {
		k = 1
	}
	if k > len(codes) {
		k = len(codes)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	picked := rng.Perm(len(codes))[:k]
	sort.Ints(picked)

	out := make([]string, k)
	for i, p := range picked {
		out[i] = codes[p]
	}
	return out
}
