package index

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/imputation"
	"github.com/ONEcampaign/toughest-places-index/internal/scaling"
)

// Dimension is a named group of indicators. It owns its indicators and
// caches their wide pivot until a rescale, an added indicator or an
// imputation replaces it. Once added to an Index, every change also marks
// the index's aggregate table out of date.
type Dimension struct {
	name       string
	indicators []*Indicator
	owner      *Index

	wide    *frame.Frame
	dirty   bool
	imputed bool

	logger *slog.Logger
}

// NewDimension groups indicators under a name.
func NewDimension(name string, indicators ...*Indicator) (*Dimension, error) {
	d := &Dimension{name: name, dirty: true, logger: slog.Default()}
	for _, ind := range indicators {
		if err := d.AddIndicator(ind); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Name returns the dimension name, possibly empty.
func (d *Dimension) Name() string { return d.name }

// AddIndicator appends an indicator and invalidates the cached table. When
// the dimension belongs to an index, the indicator name must not already
// be used by another of its dimensions.
func (d *Dimension) AddIndicator(ind *Indicator) error {
	if ind == nil {
		return apperrors.NewAppValidationError("cannot add a nil indicator")
	}
	if d.owner != nil {
		if err := d.owner.checkColumns(d, ind); err != nil {
			return err
		}
	}
	d.indicators = append(d.indicators, ind)
	d.invalidate()
	return nil
}

// Indicators returns the owned indicators in order.
func (d *Dimension) Indicators() []*Indicator {
	return append([]*Indicator(nil), d.indicators...)
}

// Imputed reports whether the cached wide table holds imputed values.
func (d *Dimension) Imputed() bool { return d.imputed && !d.dirty }

func (d *Dimension) invalidate() {
	d.dirty = true
	d.imputed = false
	if d.owner != nil {
		d.owner.invalidate()
	}
}

// Wide pivots the indicators into one row per country and one column per
// indicator name. Rows follow first appearance; columns follow the order
// indicator names first appear. A country reported twice for the same
// indicator name is a duplicate key.
func (d *Dimension) Wide() (*frame.Frame, error) {
	if !d.dirty && d.wide != nil {
		return d.wide.Clone(), nil
	}

	var (
		index   []string
		rowSeen = make(map[string]bool)
		columns []string
		cells   = make(map[string]map[string]float64)
	)
	for _, ind := range d.indicators {
		f, err := ind.current()
		if err != nil {
			return nil, err
		}
		col, ok := cells[ind.name]
		if !ok {
			col = make(map[string]float64)
			cells[ind.name] = col
			columns = append(columns, ind.name)
		}
		values := f.Column(ColValue)
		for i, code := range f.Index() {
			if _, dup := col[code]; dup {
				return nil, apperrors.NewDuplicateKeyError(
					fmt.Sprintf("dimension %q pivot", d.name), code+"/"+ind.name)
			}
			col[code] = values[i]
			if !rowSeen[code] {
				rowSeen[code] = true
				index = append(index, code)
			}
		}
	}

	wide := frame.MustNew(index)
	for _, name := range columns {
		vals := make([]float64, len(index))
		for i, code := range index {
			v, ok := cells[name][code]
			if !ok {
				v = nan
			}
			vals[i] = v
		}
		if err := wide.SetColumn(name, vals); err != nil {
			return nil, err
		}
	}

	d.wide = wide
	d.dirty = false
	d.imputed = false
	return wide.Clone(), nil
}

// Long stacks every indicator's rows, tagged with the indicator name.
func (d *Dimension) Long(withDate bool) (Observations, error) {
	var out Observations
	for _, ind := range d.indicators {
		records, err := ind.Data(withDate)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			out = append(out, Observation{ISOCode: r.ISOCode, Indicator: ind.name, Value: r.Value, Date: r.Date})
		}
	}
	return out, nil
}

// Data returns the wide table as a *frame.Frame or the long table as
// Observations. Dates cannot be shown in the wide orientation.
func (d *Dimension) Data(orient Orientation, withDate bool) (Table, error) {
	switch orient {
	case Wide:
		if withDate {
			return nil, apperrors.NewOrientationError("dates are only available in the 'long' orientation")
		}
		return d.Wide()
	case Long:
		return d.Long(withDate)
	}
	_, err := ParseOrientation(string(orient))
	return nil, err
}

// Rescale applies the scaler to every indicator.
func (d *Dimension) Rescale(s scaling.Scaler) error {
	for _, ind := range d.indicators {
		if err := ind.Rescale(s); err != nil {
			return err
		}
	}
	d.invalidate()
	return nil
}

// ImputeMissingData fills the current wide table and caches the result.
func (d *Dimension) ImputeMissingData(ctx context.Context, imp imputation.Imputer) error {
	wide, err := d.Wide()
	if err != nil {
		return err
	}
	filled, err := imp.Impute(ctx, wide)
	if err != nil {
		return fmt.Errorf("imputing dimension %q: %w", d.name, err)
	}
	d.wide = filled
	d.dirty = false
	d.imputed = true
	if d.owner != nil {
		d.owner.invalidate()
	}
	d.logger.DebugContext(ctx, "dimension imputed", "dimension", d.name, "imputer", imp.Name())
	return nil
}

func (d *Dimension) withhold(codes []string) {
	for _, ind := range d.indicators {
		ind.withhold(codes)
	}
	d.invalidate()
}

func (d *Dimension) clone() *Dimension {
	out := *d
	out.indicators = make([]*Indicator, len(d.indicators))
	for i, ind := range d.indicators {
		out.indicators[i] = ind.clone()
	}
	if d.wide != nil {
		out.wide = d.wide.Clone()
	}
	return &out
}
