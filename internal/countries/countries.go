// Package countries classifies ISO-3166 alpha-3 codes into the groupings
// used by group-wise imputation and grouped audits, and supplies the
// universe of codes an indicator accepts.
package countries

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
)

// Grouping is a country classification key.
type Grouping string

const (
	ByISOCode     Grouping = "iso_code"
	ByCountry     Grouping = "country"
	ByContinent   Grouping = "continent"
	ByUNRegion    Grouping = "UNregion"
	ByIncomeLevel Grouping = "income_level"
)

var groupings = []Grouping{ByISOCode, ByCountry, ByContinent, ByUNRegion, ByIncomeLevel}

// ParseGrouping validates a grouping name.
func ParseGrouping(name string) (Grouping, error) {
	for _, g := range groupings {
		if string(g) == name {
			return g, nil
		}
	}
	names := make([]string, len(groupings))
	for i, g := range groupings {
		names[i] = string(g)
	}
	return "", apperrors.NewAppValidationError(
		fmt.Sprintf("grouping %q is not available, use one of: %s", name, strings.Join(names, ", ")))
}

// IncomeLevel is the World Bank income classification.
type IncomeLevel string

const (
	LowIncome         IncomeLevel = "Low income"
	LowerMiddleIncome IncomeLevel = "Lower middle income"
	UpperMiddleIncome IncomeLevel = "Upper middle income"
	HighIncome        IncomeLevel = "High income"
)

// ParseIncomeLevel accepts the four World Bank labels. Anything else,
// including the empty string, is reported as not ok.
func ParseIncomeLevel(s string) (IncomeLevel, bool) {
	switch l := IncomeLevel(strings.TrimSpace(s)); l {
	case LowIncome, LowerMiddleIncome, UpperMiddleIncome, HighIncome:
		return l, true
	}
	return "", false
}

// Classifier maps country codes to group labels. Codes it cannot
// classify are absent from the result.
type Classifier interface {
	Classify(codes []string, by Grouping) map[string]string
}

// Universe decides which country codes an indicator keeps.
type Universe interface {
	Contains(code string) bool
}

type formatUniverse struct{}

func (formatUniverse) Contains(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// FormatUniverse accepts any three upper-case letter code.
var FormatUniverse Universe = formatUniverse{}

// Entry is one country's classification.
type Entry struct {
	ISOCode   string
	Name      string
	Continent string
	UNRegion  string
	Income    IncomeLevel
}

// Registry is an in-memory Classifier and Universe.
type Registry struct {
	order   []string
	entries map[string]Entry
}

// NewRegistry builds a registry; codes must be unique.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, ok := r.entries[e.ISOCode]; ok {
			return nil, apperrors.NewDuplicateKeyError("country registry", e.ISOCode)
		}
		r.entries[e.ISOCode] = e
		r.order = append(r.order, e.ISOCode)
	}
	return r, nil
}

var registryColumns = []string{"iso_code", "name_short", "continent", "un_region", "income_level"}

// LoadRegistry reads a CSV with columns iso_code, name_short, continent,
// un_region and income_level. Unrecognised income labels are left blank.
func LoadRegistry(r io.Reader) (*Registry, error) {
	types := make(map[string]series.Type, len(registryColumns))
	for _, c := range registryColumns {
		types[c] = series.String
	}
	df := dataframe.ReadCSV(r, dataframe.WithTypes(types))
	if df.Err != nil {
		return nil, apperrors.NewParsingError("reading country registry", df.Err)
	}

	var missing []string
	have := make(map[string]bool)
	for _, n := range df.Names() {
		have[n] = true
	}
	for _, c := range registryColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.NewSchemaError(missing)
	}

	codes := df.Col("iso_code").Records()
	names := df.Col("name_short").Records()
	continents := df.Col("continent").Records()
	regions := df.Col("un_region").Records()
	incomes := df.Col("income_level").Records()

	entries := make([]Entry, 0, len(codes))
	for i, code := range codes {
		income, _ := ParseIncomeLevel(incomes[i])
		entries = append(entries, Entry{
			ISOCode:   strings.TrimSpace(code),
			Name:      cleanLabel(names[i]),
			Continent: cleanLabel(continents[i]),
			UNRegion:  cleanLabel(regions[i]),
			Income:    income,
		})
	}
	return NewRegistry(entries...)
}

// gota renders missing string cells as "NaN".
func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "NaN" {
		return ""
	}
	return s
}

// Contains reports whether the code is registered.
func (r *Registry) Contains(code string) bool {
	_, ok := r.entries[code]
	return ok
}

// Lookup returns a country's entry.
func (r *Registry) Lookup(code string) (Entry, bool) {
	e, ok := r.entries[code]
	return e, ok
}

// Codes returns the registered codes in load order.
func (r *Registry) Codes() []string {
	return append([]string(nil), r.order...)
}

// Classify implements Classifier. Grouping by iso_code maps every code to itself.
func (r *Registry) Classify(codes []string, by Grouping) map[string]string {
	out := make(map[string]string, len(codes))
	for _, code := range codes {
		if by == ByISOCode {
			out[code] = code
			continue
		}
		e, ok := r.entries[code]
		if !ok {
			continue
		}
		var label string
		switch by {
		case ByCountry:
			label = e.Name
		case ByContinent:
			label = e.Continent
		case ByUNRegion:
			label = e.UNRegion
		case ByIncomeLevel:
			label = string(e.Income)
		}
		if label != "" {
			out[code] = label
		}
	}
	return out
}

// WithIncome returns the registered codes whose income level is one of levels.
func (r *Registry) WithIncome(levels ...IncomeLevel) []string {
	want := make(map[IncomeLevel]bool, len(levels))
	for _, l := range levels {
		want[l] = true
	}
	var out []string
	for _, code := range r.order {
		if want[r.entries[code].Income] {
			out = append(out, code)
		}
	}
	return out
}

// Resolve picks a named country set and removes exclusions, keeping the
// set's order and dropping repeats.
func Resolve(sets map[string][]string, name string, exclude []string) ([]string, error) {
	set, ok := sets[name]
	if !ok {
		available := make([]string, 0, len(sets))
		for k := range sets {
			available = append(available, k)
		}
		sort.Strings(available)
		return nil, apperrors.NewAppValidationError(
			fmt.Sprintf("country set %q is not configured, use one of: %s", name, strings.Join(available, ", ")))
	}

	skip := make(map[string]bool, len(exclude))
	for _, c := range exclude {
		skip[c] = true
	}
	out := make([]string, 0, len(set))
	for _, c := range set {
		if skip[c] {
			continue
		}
		skip[c] = true
		out = append(out, c)
	}
	return out, nil
}

// Groups inverts a classification into label -> codes, keeping the
// order of codes. Unclassified codes are skipped.
func Groups(codes []string, labels map[string]string) (order []string, members map[string][]string) {
	members = make(map[string][]string)
	for _, code := range codes {
		label, ok := labels[code]
		if !ok {
			continue
		}
		if _, seen := members[label]; !seen {
			order = append(order, label)
		}
		members[label] = append(members[label], code)
	}
	return order, members
}
