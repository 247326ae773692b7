package index

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/ONEcampaign/toughest-places-index/internal/countries"
	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/scaling"
)

// Indicator is one measured quantity for a set of countries.
//
// The raw table is fixed at construction. Rescale derives a working copy
// from it; reads before any rescale see the raw values.
type Indicator struct {
	name        string
	moreIsWorse bool
	countries   []string

	raw   *frame.Frame
	dates map[string]string

	data   *frame.Frame
	scaler scaling.Scaler
	// dirty means data must be rebuilt from raw before the next read
	dirty bool

	logger *slog.Logger
}

type indicatorConfig struct {
	countries   []string
	moreIsWorse bool
	universe    countries.Universe
	fill        *float64
	logger      *slog.Logger
}

// IndicatorOption configures NewIndicator.
type IndicatorOption func(*indicatorConfig)

// WithCountries fixes the country axis: rows are reindexed to exactly these
// codes, in this order.
func WithCountries(codes []string) IndicatorOption {
	return func(c *indicatorConfig) { c.countries = append([]string(nil), codes...) }
}

// WithPolarity sets whether a higher value is a worse outcome. The default is true.
func WithPolarity(moreIsWorse bool) IndicatorOption {
	return func(c *indicatorConfig) { c.moreIsWorse = moreIsWorse }
}

// WithUniverse sets the codes the indicator accepts. The default accepts
// any well-formed alpha-3 code.
func WithUniverse(u countries.Universe) IndicatorOption {
	return func(c *indicatorConfig) { c.universe = u }
}

// WithFillValue replaces missing raw values, including rows added by
// WithCountries, with v.
func WithFillValue(v float64) IndicatorOption {
	return func(c *indicatorConfig) { c.fill = &v }
}

// WithLogger sets the logger used for data-quality warnings.
func WithLogger(l *slog.Logger) IndicatorOption {
	return func(c *indicatorConfig) { c.logger = l }
}

// NewIndicator validates a raw table into an indicator. The table needs
// iso_code and value columns; date is kept when present and every other
// column is discarded.
func NewIndicator(df dataframe.DataFrame, name string, opts ...IndicatorOption) (*Indicator, error) {
	cfg := indicatorConfig{moreIsWorse: true, universe: countries.FormatUniverse}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.universe == nil {
		cfg.universe = countries.FormatUniverse
	}

	if df.Err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("indicator %q source table", name), df.Err)
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.NewAppValidationError("indicator name must not be empty")
	}

	have := make(map[string]bool)
	for _, n := range df.Names() {
		have[n] = true
	}
	var missing []string
	for _, c := range []string{ColISOCode, ColValue} {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewSchemaError(missing)
	}

	codes := df.Col(ColISOCode).Records()
	values := df.Col(ColValue).Float()
	var rawDates []string
	if have[ColDate] {
		rawDates = df.Col(ColDate).Records()
	}

	var (
		keptCodes []string
		keptVals  []float64
		dropped   []string
		dates     = make(map[string]string)
		seen      = make(map[string]bool)
	)
	for i, code := range codes {
		code = strings.TrimSpace(code)
		if !cfg.universe.Contains(code) {
			dropped = append(dropped, code)
			continue
		}
		if seen[code] {
			return nil, apperrors.NewDuplicateKeyError(fmt.Sprintf("indicator %q", name), code)
		}
		seen[code] = true
		keptCodes = append(keptCodes, code)
		keptVals = append(keptVals, values[i])
		if rawDates != nil && rawDates[i] != "NaN" && rawDates[i] != "" {
			dates[code] = rawDates[i]
		}
	}

	if len(dropped) > 0 {
		cfg.logger.Warn("dropped rows with unrecognised country codes",
			"indicator", name,
			"count", len(dropped),
			"codes", dropped,
		)
	}

	raw, err := frame.New(keptCodes)
	if err != nil {
		return nil, err
	}
	if err := raw.SetColumn(ColValue, keptVals); err != nil {
		return nil, err
	}

	if cfg.countries != nil {
		if raw, err = raw.Reindex(cfg.countries); err != nil {
			return nil, fmt.Errorf("indicator %q countries list: %w", name, err)
		}
	}

	if cfg.fill != nil {
		col := raw.Column(ColValue)
		for i, v := range col {
			if math.IsNaN(v) {
				col[i] = *cfg.fill
			}
		}
		if err := raw.SetColumn(ColValue, col); err != nil {
			return nil, err
		}
	}

	return &Indicator{
		name:        name,
		moreIsWorse: cfg.moreIsWorse,
		countries:   cfg.countries,
		raw:         raw,
		dates:       dates,
		dirty:       true,
		logger:      cfg.logger,
	}, nil
}

// NewIndicatorFromRecords builds the raw table from records and validates it
// like NewIndicator.
func NewIndicatorFromRecords(records []Record, name string, opts ...IndicatorOption) (*Indicator, error) {
	codes := make([]string, len(records))
	values := make([]float64, len(records))
	dates := make([]string, len(records))
	dated := false
	for i, r := range records {
		codes[i] = r.ISOCode
		values[i] = r.Value
		dates[i] = r.Date
		dated = dated || r.Date != ""
	}

	cols := []series.Series{
		series.New(codes, series.String, ColISOCode),
		series.New(values, series.Float, ColValue),
	}
	if dated {
		cols = append(cols, series.New(dates, series.String, ColDate))
	}
	return NewIndicator(dataframe.New(cols...), name, opts...)
}

// Name identifies the indicator and names its column in wide tables.
func (ind *Indicator) Name() string { return ind.name }

// MoreIsWorse reports the indicator's polarity.
func (ind *Indicator) MoreIsWorse() bool { return ind.moreIsWorse }

// Countries returns the fixed country list, or nil if none was set.
func (ind *Indicator) Countries() []string {
	if ind.countries == nil {
		return nil
	}
	return append([]string(nil), ind.countries...)
}

// Scaler returns the scaler last applied, or nil.
func (ind *Indicator) Scaler() scaling.Scaler { return ind.scaler }

// current returns the working table, rebuilding it from raw if needed.
func (ind *Indicator) current() (*frame.Frame, error) {
	if !ind.dirty && ind.data != nil {
		return ind.data, nil
	}
	if ind.scaler == nil {
		ind.data = ind.raw.Clone()
		ind.dirty = false
		return ind.data, nil
	}
	if err := ind.Rescale(ind.scaler); err != nil {
		return nil, err
	}
	return ind.data, nil
}

// Data returns the working table: rescaled values if Rescale was called,
// raw values otherwise. Dates are included when asked for and known.
func (ind *Indicator) Data(withDate bool) (Records, error) {
	f, err := ind.current()
	if err != nil {
		return nil, err
	}
	codes := f.Index()
	values := f.Column(ColValue)
	out := make(Records, len(codes))
	for i, code := range codes {
		out[i] = Record{ISOCode: code, Value: values[i]}
		if withDate {
			out[i].Date = ind.dates[code]
		}
	}
	return out, nil
}

// Rescale replaces the working table with the scaler applied to the raw
// values. Rows and their order are unchanged.
func (ind *Indicator) Rescale(s scaling.Scaler) error {
	scaled, err := scaling.Apply(s, ind.raw.Column(ColValue))
	if err != nil {
		return fmt.Errorf("rescaling indicator %q: %w", ind.name, err)
	}
	data := frame.MustNew(ind.raw.Index())
	if err := data.SetColumn(ColValue, scaled); err != nil {
		return err
	}
	ind.data = data
	ind.scaler = s
	ind.dirty = false
	return nil
}

// withhold blanks the raw values of the given countries. Only clones made
// for diagnostics call it.
func (ind *Indicator) withhold(codes []string) {
	for _, code := range codes {
		if _, ok := ind.raw.Position(code); ok {
			_ = ind.raw.Set(code, ColValue, math.NaN())
		}
	}
	ind.dirty = true
}

func (ind *Indicator) clone() *Indicator {
	out := *ind
	out.countries = ind.Countries()
	out.raw = ind.raw.Clone()
	out.dates = make(map[string]string, len(ind.dates))
	for k, v := range ind.dates {
		out.dates[k] = v
	}
	if ind.data != nil {
		out.data = ind.data.Clone()
	}
	return &out
}
