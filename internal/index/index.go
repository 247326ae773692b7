package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/imputation"
	"github.com/ONEcampaign/toughest-places-index/internal/scaling"
)

const tracerName = "github.com/ONEcampaign/toughest-places-index/internal/index"

var nan = math.NaN()

// Phase is the last pipeline step applied to the aggregate table.
type Phase int

const (
	PhaseAssembled Phase = iota
	PhaseRescaled
	PhaseImputed
	PhaseComputed
)

func (p Phase) String() string {
	switch p {
	case PhaseRescaled:
		return "rescaled"
	case PhaseImputed:
		return "imputed"
	case PhaseComputed:
		return "computed"
	}
	return "assembled"
}

// Index aggregates dimensions into a scored table. It is the only writer
// of the aggregate table; dimensions and indicators are changed through
// Rescale and ImputeMissingData.
type Index struct {
	dimensions []*Dimension

	data   *frame.Frame
	dirty  bool
	phase  Phase
	scores *frame.Frame

	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures New.
type Option func(*Index)

// WithIndexLogger sets the logger for the index and its dimensions.
func WithIndexLogger(l *slog.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New builds an index over dimensions. Indicator names must be unique
// across dimensions since they name the aggregate columns.
func New(dimensions []*Dimension, opts ...Option) (*Index, error) {
	ix := &Index{
		dirty:  true,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(ix)
	}
	for _, d := range dimensions {
		if err := ix.AddDimension(d); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// AddDimension appends a dimension. A dimension belongs to at most one
// index.
func (ix *Index) AddDimension(d *Dimension) error {
	if d == nil {
		return apperrors.NewAppValidationError("cannot add a nil dimension")
	}
	if d.owner != nil {
		return apperrors.NewStateError(fmt.Sprintf("dimension %q already belongs to an index", d.name))
	}
	if err := ix.checkColumns(d, d.indicators...); err != nil {
		return err
	}
	d.logger = ix.logger
	d.owner = ix
	ix.dimensions = append(ix.dimensions, d)
	ix.invalidate()
	return nil
}

// checkColumns rejects indicators whose name is already a column of a
// dimension other than d.
func (ix *Index) checkColumns(d *Dimension, inds ...*Indicator) error {
	owner := make(map[string]string)
	for _, existing := range ix.dimensions {
		if existing == d {
			continue
		}
		for _, ind := range existing.indicators {
			owner[ind.name] = existing.name
		}
	}
	for _, ind := range inds {
		if other, ok := owner[ind.name]; ok {
			return apperrors.NewDuplicateKeyError("index columns", ind.name).
				WithContext("dimensions", []string{other, d.name})
		}
	}
	return nil
}

// Dimensions returns the owned dimensions in order.
func (ix *Index) Dimensions() []*Dimension {
	return append([]*Dimension(nil), ix.dimensions...)
}

// Indicators returns every indicator across dimensions, in order.
func (ix *Index) Indicators() []*Indicator {
	var out []*Indicator
	for _, d := range ix.dimensions {
		out = append(out, d.indicators...)
	}
	return out
}

// Phase reports the last step applied to the aggregate table.
func (ix *Index) Phase() Phase { return ix.phase }

func (ix *Index) invalidate() {
	ix.dirty = true
	ix.phase = PhaseAssembled
	ix.scores = nil
}

// assemble outer-joins the dimensions' wide tables.
func (ix *Index) assemble() (*frame.Frame, error) {
	wides := make([]*frame.Frame, 0, len(ix.dimensions))
	for _, d := range ix.dimensions {
		w, err := d.Wide()
		if err != nil {
			return nil, err
		}
		wides = append(wides, w)
	}
	return frame.OuterJoin(wides...)
}

// Data returns a copy of the aggregate wide table, assembling it first if
// it is out of date.
func (ix *Index) Data() (*frame.Frame, error) {
	if ix.dirty || ix.data == nil {
		data, err := ix.assemble()
		if err != nil {
			return nil, err
		}
		ix.data = data
		ix.dirty = false
	}
	return ix.data.Clone(), nil
}

// Rescale applies the scaler to every indicator of every dimension.
func (ix *Index) Rescale(s scaling.Scaler) error {
	for _, d := range ix.dimensions {
		if err := d.Rescale(s); err != nil {
			return err
		}
	}
	ix.invalidate()
	ix.phase = PhaseRescaled
	return nil
}

// ImputeMissingData fills the aggregate table in place.
func (ix *Index) ImputeMissingData(ctx context.Context, imp imputation.Imputer) error {
	data, err := ix.Data()
	if err != nil {
		return err
	}
	filled, err := imp.Impute(ctx, data)
	if err != nil {
		return fmt.Errorf("imputing index: %w", err)
	}
	ix.data = filled
	ix.phase = PhaseImputed
	ix.scores = nil
	return nil
}

// ComputeOptions selects the pipeline steps. A nil Scaler keeps the
// indicators' current values and a nil Imputer leaves gaps in place.
type ComputeOptions struct {
	Scaler    scaling.Scaler
	Imputer   imputation.Imputer
	Summarize bool
}

// Compute runs rescale, impute, polarity correction and, if asked,
// summarization. It returns the scores sorted worst-first when summarizing
// and the corrected wide table otherwise.
func (ix *Index) Compute(ctx context.Context, opts ComputeOptions) (*frame.Frame, error) {
	ctx, span := ix.tracer.Start(ctx, "index.Compute", trace.WithAttributes(
		attribute.Int("dimensions", len(ix.dimensions)),
		attribute.Bool("summarize", opts.Summarize),
	))
	defer span.End()

	start := time.Now()
	out, err := ix.compute(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ix.logger.ErrorContext(ctx, "index computation failed", "error", err)
		return nil, err
	}

	ix.logger.InfoContext(ctx, "index computed",
		"countries", ix.data.Len(),
		"indicators", ix.data.Width(),
		"scaler", nameOf(opts.Scaler),
		"imputer", nameOf(opts.Imputer),
		"duration", time.Since(start),
	)
	return out, nil
}

func (ix *Index) compute(ctx context.Context, opts ComputeOptions) (*frame.Frame, error) {
	if opts.Scaler != nil {
		_, span := ix.tracer.Start(ctx, "index.rescale", trace.WithAttributes(attribute.String("scaler", opts.Scaler.Name())))
		err := ix.Rescale(opts.Scaler)
		span.End()
		if err != nil {
			return nil, err
		}
	}

	// always start from the dimensions so an earlier run's sign flips are discarded
	ix.invalidate()
	data, err := ix.Data()
	if err != nil {
		return nil, err
	}

	if opts.Imputer != nil {
		imputeCtx, span := ix.tracer.Start(ctx, "index.impute", trace.WithAttributes(attribute.String("imputer", opts.Imputer.Name())))
		data, err = opts.Imputer.Impute(imputeCtx, data)
		span.End()
		if err != nil {
			return nil, fmt.Errorf("imputing index: %w", err)
		}
	}

	flipped := make(map[string]bool)
	for _, ind := range ix.Indicators() {
		if ind.moreIsWorse || flipped[ind.name] || !data.Has(ind.name) {
			continue
		}
		col := data.Column(ind.name)
		for i, v := range col {
			col[i] = -v
		}
		if err := data.SetColumn(ind.name, col); err != nil {
			return nil, err
		}
		flipped[ind.name] = true
	}

	ix.data = data
	ix.dirty = false
	ix.phase = PhaseComputed

	if !opts.Summarize {
		return data.Clone(), nil
	}

	scores := frame.MustNew(data.Index())
	if err := scores.SetColumn(ScoreColumn, data.RowMeans()); err != nil {
		return nil, err
	}
	if scores, err = scores.SortBy(ScoreColumn); err != nil {
		return nil, err
	}
	ix.scores = scores
	return scores.Clone(), nil
}

func nameOf(v interface{ Name() string }) string {
	if v == nil {
		return "none"
	}
	return v.Name()
}

// Scores returns the summarized scores of the last Compute.
func (ix *Index) Scores() (*frame.Frame, error) {
	if ix.scores == nil {
		return nil, apperrors.NewStateError("index scores are not available, run Compute with Summarize")
	}
	return ix.scores.Clone(), nil
}

// RescaleIndex maps the scores onto 0-100. The ends of the range are the
// lowest and highest attainable averages, estimated as the mean of each
// column's minimum and the mean of each column's maximum. Scores are
// rounded to one decimal.
func (ix *Index) RescaleIndex() (*frame.Frame, error) {
	if ix.scores == nil || ix.phase != PhaseComputed {
		return nil, apperrors.NewStateError("rescaling the index needs computed scores, run Compute with Summarize")
	}

	var lows, highs []float64
	for _, c := range ix.data.Columns() {
		obs := frame.Observed(ix.data.Column(c))
		if len(obs) == 0 {
			continue
		}
		lo, hi := obs[0], obs[0]
		for _, v := range obs[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		lows = append(lows, lo)
		highs = append(highs, hi)
	}
	if len(lows) == 0 {
		return nil, apperrors.NewStateError("aggregate table has no observed values")
	}
	lo, err := stats.Mean(lows)
	if err != nil {
		return nil, err
	}
	hi, err := stats.Mean(highs)
	if err != nil {
		return nil, err
	}
	if hi == lo {
		return nil, apperrors.NewAppValidationError("attainable score range is empty")
	}

	col := ix.scores.Column(ScoreColumn)
	for i, v := range col {
		col[i] = (v - lo) / (hi - lo) * 100
	}
	out := frame.MustNew(ix.scores.Index())
	if err := out.SetColumn(ScoreColumn, col); err != nil {
		return nil, err
	}
	return out.Round(1), nil
}

// Clone returns an independent deep copy.
func (ix *Index) Clone() *Index {
	out := *ix
	out.dimensions = make([]*Dimension, len(ix.dimensions))
	for i, d := range ix.dimensions {
		out.dimensions[i] = d.clone()
		out.dimensions[i].owner = &out
	}
	if ix.data != nil {
		out.data = ix.data.Clone()
	}
	if ix.scores != nil {
		out.scores = ix.scores.Clone()
	}
	return &out
}

// withhold blanks the given countries in every indicator.
func (ix *Index) withhold(codes []string) {
	for _, d := range ix.dimensions {
		d.withhold(codes)
	}
	ix.invalidate()
}
