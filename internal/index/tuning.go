package index

import (
	"context"
	"math"
	"math/rand/v2"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/imputation"
	"github.com/ONEcampaign/toughest-places-index/internal/scaling"
)

// Defaults for TuneNeighbors.
const (
	DefaultTuningTrials       = 500
	DefaultTuningMissingShare = 0.05
)

// TuningOptions configures TuneNeighbors.
type TuningOptions struct {
	Neighbors    int
	Trials       int
	MissingShare float64
	Seed         uint64
	// Scaler, if set, is applied to a copy before the trials.
	Scaler scaling.Scaler
}

// TuningReport summarises the trials for one neighbour count.
type TuningReport struct {
	Neighbors int `json:"neighbors"`
	Trials    int `json:"trials"`
	// MeanAbsPctDeviation is the mean, over trials, of the mean absolute
	// percentage deviation between masked values and their imputations.
	MeanAbsPctDeviation float64 `json:"mean_abs_pct_deviation"`
	// Skipped counts masked cells whose true value is zero.
	Skipped int `json:"skipped"`
}

// TuneNeighbors estimates how well nearest-neighbour imputation with
// opts.Neighbors recovers known values: each trial masks a random share of
// the observed cells, imputes them and measures the deviation. The
// receiver is not modified.
func (ix *Index) TuneNeighbors(ctx context.Context, opts TuningOptions) (*TuningReport, error) {
	if opts.Trials <= 0 {
		opts.Trials = DefaultTuningTrials
	}
	if opts.MissingShare <= 0 || opts.MissingShare >= 1 {
		opts.MissingShare = DefaultTuningMissingShare
	}
	knn, err := imputation.NewKNN(opts.Neighbors)
	if err != nil {
		return nil, err
	}
	knn.Logger = ix.logger

	ctx, span := ix.tracer.Start(ctx, "index.TuneNeighbors", trace.WithAttributes(
		attribute.Int("neighbors", opts.Neighbors),
		attribute.Int("trials", opts.Trials),
	))
	defer span.End()

	work := ix.Clone()
	if opts.Scaler != nil {
		if err := work.Rescale(opts.Scaler); err != nil {
			return nil, err
		}
	}
	data, err := work.Data()
	if err != nil {
		return nil, err
	}

	type cell struct {
		code, column string
		value        float64
	}
	var cells []cell
	for _, c := range data.Columns() {
		for _, code := range data.Index() {
			if v := data.Value(code, c); !frame.IsNull(v) {
				cells = append(cells, cell{code, c, v})
			}
		}
	}
	k := int(math.Round(opts.MissingShare * float64(len(cells))))
	if k < 1 {
		return nil, apperrors.NewAppValidationError("too few observed values to mask for tuning")
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	report := &TuningReport{Neighbors: opts.Neighbors, Trials: opts.Trials}
	total := 0.0
	for trial := 0; trial < opts.Trials; trial++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		masked := data.Clone()
		picked := rng.Perm(len(cells))[:k]
		for _, p := range picked {
			if err := masked.Set(cells[p].code, cells[p].column, nan); err != nil {
				return nil, err
			}
		}
		filled, err := knn.Impute(ctx, masked)
		if err != nil {
			return nil, err
		}

		sum, n := 0.0, 0
		for _, p := range picked {
			truth := cells[p].value
			dev := math.Abs((filled.Value(cells[p].code, cells[p].column) - truth) / truth)
			if math.IsInf(dev, 0) || math.IsNaN(dev) {
				report.Skipped++
				continue
			}
			sum += dev
			n++
		}
		if n > 0 {
			total += sum / float64(n) * 100
		}
	}
	report.MeanAbsPctDeviation = total / float64(opts.Trials)

	if report.Skipped > 0 {
		ix.logger.WarnContext(ctx, "infinite percentage differences replaced by null",
			"operation", "tuning",
			"count", report.Skipped,
		)
	}
	ix.logger.InfoContext(ctx, "neighbour tuning complete",
		"neighbors", opts.Neighbors,
		"trials", opts.Trials,
		"mean_abs_pct_deviation", report.MeanAbsPctDeviation,
	)
	return report, nil
}
