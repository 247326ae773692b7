// Package sources reads raw indicator tables from CSV and Excel files into
// data frames with iso_code, value and, when present, date columns.
package sources

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
)

// Column names shared with the index package.
const (
	ColISOCode = "iso_code"
	ColValue   = "value"
	ColDate    = "date"
)

var columnTypes = map[string]series.Type{
	ColISOCode: series.String,
	ColDate:    series.String,
	ColValue:   series.Float,
}

// Options controls Load.
type Options struct {
	// Sheet names the worksheet of an Excel file; the first sheet when empty.
	Sheet string
	// Latest keeps one row per country with its most recent observation.
	Latest bool
}

// Load reads a .csv or .xlsx file.
func Load(path string, opts Options) (dataframe.DataFrame, error) {
	var (
		df  dataframe.DataFrame
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return dataframe.DataFrame{}, apperrors.NewStorageError(fmt.Sprintf("opening %s", path), err)
		}
		defer f.Close()
		df, err = LoadCSV(f)
	case ".xlsx", ".xlsm":
		df, err = LoadXLSX(path, opts.Sheet)
	default:
		return dataframe.DataFrame{}, apperrors.NewAppValidationError(
			fmt.Sprintf("unsupported source file type %q for %s", ext, path))
	}
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("loading %s: %w", path, err)
	}

	if opts.Latest {
		return Latest(df)
	}
	return df, nil
}

// LoadCSV reads a CSV table with a header row.
func LoadCSV(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r, dataframe.WithTypes(columnTypes))
	if df.Err != nil {
		return dataframe.DataFrame{}, apperrors.NewParsingError("reading CSV table", df.Err)
	}
	return df, nil
}

// LoadXLSX reads one worksheet whose first row is the header.
func LoadXLSX(path, sheet string) (dataframe.DataFrame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return dataframe.DataFrame{}, apperrors.NewStorageError(fmt.Sprintf("opening %s", path), err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return dataframe.DataFrame{}, apperrors.NewParsingError(fmt.Sprintf("%s has no worksheets", path), nil)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return dataframe.DataFrame{}, apperrors.NewParsingError(fmt.Sprintf("reading sheet %q", sheet), err)
	}
	if len(rows) < 2 {
		return dataframe.DataFrame{}, apperrors.NewParsingError(
			fmt.Sprintf("sheet %q needs a header row and at least one data row", sheet), nil)
	}

	// GetRows trims trailing empty cells
	width := len(rows[0])
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		rows[i] = row[:width]
	}

	df := dataframe.LoadRecords(rows, dataframe.WithTypes(columnTypes))
	if df.Err != nil {
		return dataframe.DataFrame{}, apperrors.NewParsingError(fmt.Sprintf("reading sheet %q", sheet), df.Err)
	}
	return df, nil
}

// Latest reduces a dated table to one row per country: the last observed
// value and the last known date once rows are ordered by date. Output rows
// are sorted by country code and carry iso_code, date and value only.
func Latest(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	names := make(map[string]bool)
	for _, n := range df.Names() {
		names[n] = true
	}
	var missing []string
	for _, c := range []string{ColISOCode, ColDate, ColValue} {
		if !names[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return dataframe.DataFrame{}, apperrors.NewSchemaError(missing)
	}

	codes := df.Col(ColISOCode).Records()
	dates := df.Col(ColDate).Records()
	values := df.Col(ColValue).Float()

	order := make([]int, len(codes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dates[order[a]] < dates[order[b]]
	})

	type latest struct {
		date  string
		value float64
	}
	byCode := make(map[string]*latest)
	for _, i := range order {
		code := codes[i]
		l, ok := byCode[code]
		if !ok {
			l = &latest{value: math.NaN()}
			byCode[code] = l
		}
		if d := dates[i]; d != "" && d != "NaN" {
			l.date = d
		}
		if !math.IsNaN(values[i]) {
			l.value = values[i]
		}
	}

	keys := make([]string, 0, len(byCode))
	for code := range byCode {
		keys = append(keys, code)
	}
	sort.Strings(keys)

	outDates := make([]string, len(keys))
	outValues := make([]float64, len(keys))
	for i, code := range keys {
		outDates[i] = byCode[code].date
		outValues[i] = byCode[code].value
	}
	return dataframe.New(
		series.New(keys, series.String, ColISOCode),
		series.New(outDates, series.String, ColDate),
		series.New(outValues, series.Float, ColValue),
	), nil
}
