package exporter

import (
	"fmt"

	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/index"
)

// DefaultPrecision is the number of decimals scores are written with.
const DefaultPrecision = 1

// Results is what a pipeline run produces for export.
type Results struct {
	// Scores holds the score column sorted worst-first.
	Scores *frame.Frame
	// Indicators is the corrected wide table the scores were averaged from.
	Indicators *frame.Frame
	// Stability is optional.
	Stability *index.StabilityReport
	// Names maps country codes to display names; codes without one are
	// written as is.
	Names map[string]string
	// Precision of written scores, DefaultPrecision when zero.
	Precision int
}

func (r Results) precision() int {
	if r.Precision <= 0 {
		return DefaultPrecision
	}
	return r.Precision
}

func (r Results) name(code string) string {
	if n, ok := r.Names[code]; ok && n != "" {
		return n
	}
	return code
}

var scoreHeaders = []string{"rank", "iso_code", "country", "score"}

func (r Results) scoreRows() ([][]string, error) {
	if r.Scores == nil || !r.Scores.Has(index.ScoreColumn) {
		return nil, fmt.Errorf("results have no %q column", index.ScoreColumn)
	}
	rows := make([][]string, 0, r.Scores.Len())
	for i, code := range r.Scores.Index() {
		rows = append(rows, []string{
			formatInt(i + 1),
			code,
			r.name(code),
			formatFloat(r.Scores.Value(code, index.ScoreColumn), r.precision()),
		})
	}
	return rows, nil
}

var stabilityHeaders = []string{
	"iso_code", "withheld", "baseline_rank", "perturbed_rank", "shift",
	"baseline_score", "perturbed_score", "score_change_pct",
}

func stabilityRows(rep *index.StabilityReport) [][]string {
	rows := make([][]string, 0, len(rep.Shifts))
	for _, s := range rep.Shifts {
		rows = append(rows, []string{
			s.ISOCode,
			formatBool(s.Withheld),
			formatInt(s.BaselineRank),
			formatInt(s.PerturbedRank),
			formatInt(s.Shift),
			formatFloat(s.BaselineScore, 4),
			formatFloat(s.PerturbedScore, 4),
			formatFloat(s.ScoreChangePct, 2),
		})
	}
	return rows
}

// WriteScoresCSV writes the ranked scores and returns the path written.
func (w *CSVWriter) WriteScoresCSV(path string, r Results) (string, error) {
	rows, err := r.scoreRows()
	if err != nil {
		return "", err
	}
	return w.WriteCSV(path, WriteOptions{Headers: scoreHeaders, Records: rows, BOMPrefix: true})
}

// WriteStabilityCSV writes one row per country of a stability report.
func (w *CSVWriter) WriteStabilityCSV(path string, rep *index.StabilityReport) (string, error) {
	if rep == nil {
		return "", fmt.Errorf("no stability report to write")
	}
	return w.WriteCSV(path, WriteOptions{Headers: stabilityHeaders, Records: stabilityRows(rep), BOMPrefix: true})
}
