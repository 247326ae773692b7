package index

import (
	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
)

// Canonical column names of an indicator table.
const (
	ColISOCode = "iso_code"
	ColValue   = "value"
	ColDate    = "date"
)

// ScoreColumn names the summarized score.
const ScoreColumn = "score"

// Record is one row of an indicator table.
type Record struct {
	ISOCode string  `json:"iso_code"`
	Value   float64 `json:"value"`
	Date    string  `json:"date,omitempty"`
}

// Records is an indicator table in row order.
type Records []Record

// Len is the number of rows.
func (r Records) Len() int { return len(r) }

// Observation is one (country, indicator) value of the long orientation.
type Observation struct {
	ISOCode   string  `json:"iso_code"`
	Indicator string  `json:"indicator"`
	Value     float64 `json:"value"`
	Date      string  `json:"date,omitempty"`
}

// Observations is a long table.
type Observations []Observation

// Len is the number of rows.
func (o Observations) Len() int { return len(o) }

// Table is either orientation of a dimension's data: a *frame.Frame when
// wide, Observations when long.
type Table interface {
	Len() int
}

// Orientation selects the shape of Dimension.Data.
type Orientation string

const (
	Wide Orientation = "wide"
	Long Orientation = "long"
)

// ParseOrientation accepts "wide" or "long".
func ParseOrientation(s string) (Orientation, error) {
	switch o := Orientation(s); o {
	case Wide, Long:
		return o, nil
	}
	return "", apperrors.NewOrientationError("orientation must be 'wide' or 'long' but got '" + s + "'")
}
