package exporter

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/index"
)

func sampleResults(t *testing.T) Results {
	t.Helper()
	scores := frame.MustNew([]string{"SSD", "KEN", "ETH"})
	require.NoError(t, scores.SetColumn(index.ScoreColumn, []float64{81.26, 40.04, math.NaN()}))

	inds := frame.MustNew([]string{"KEN", "SSD", "ETH"})
	require.NoError(t, inds.SetColumn("hunger", []float64{0.3, 0.9, math.NaN()}))
	require.NoError(t, inds.SetColumn("reserves", []float64{-0.2, -0.1, -0.5}))

	return Results{
		Scores:     scores,
		Indicators: inds,
		Names:      map[string]string{"KEN": "Kenya", "SSD": "South Sudan"},
		Stability: &index.StabilityReport{
			Withheld: []string{"KEN"},
			Shifts: []index.RankShift{
				{ISOCode: "SSD", BaselineRank: 1, PerturbedRank: 1, BaselineScore: 2, PerturbedScore: 2},
				{ISOCode: "KEN", Withheld: true, BaselineRank: 2, PerturbedRank: 3, Shift: 1,
					BaselineScore: 0, PerturbedScore: 1, ScoreChangePct: math.NaN()},
			},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	body := strings.TrimPrefix(string(content), "\ufeff")
	records, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteScoresCSV(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, nil)

	path, err := w.WriteScoresCSV("scores/index_scores.csv", sampleResults(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scores", "index_scores.csv"), path)

	assert.Equal(t, [][]string{
		{"rank", "iso_code", "country", "score"},
		{"1", "SSD", "South Sudan", "81.3"},
		{"2", "KEN", "Kenya", "40.0"},
		{"3", "ETH", "ETH", ""},
	}, readCSV(t, path))
}

func TestWriteScoresCSV_Precision(t *testing.T) {
	r := sampleResults(t)
	r.Precision = 3
	path, err := NewCSVWriter(t.TempDir(), nil).WriteScoresCSV("s.csv", r)
	require.NoError(t, err)
	assert.Equal(t, "81.260", readCSV(t, path)[1][3])
}

func TestWriteScoresCSV_NeedsScores(t *testing.T) {
	r := sampleResults(t)
	r.Scores = r.Indicators
	_, err := NewCSVWriter(t.TempDir(), nil).WriteScoresCSV("s.csv", r)
	assert.Error(t, err)
}

func TestWriteStabilityCSV(t *testing.T) {
	w := NewCSVWriter(t.TempDir(), nil)
	path, err := w.WriteStabilityCSV("stability.csv", sampleResults(t).Stability)
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, stabilityHeaders, rows[0])
	assert.Equal(t, []string{"KEN", "true", "2", "3", "1", "0.0000", "1.0000", ""}, rows[2])

	_, err = w.WriteStabilityCSV("none.csv", nil)
	assert.Error(t, err)
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "index_results_detailed.xlsx")
	require.NoError(t, WriteWorkbook(path, sampleResults(t), nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetScores, SheetIndicators, SheetStability}, f.GetSheetList())

	scores, err := f.GetRows(SheetScores)
	require.NoError(t, err)
	assert.Equal(t, []string{"rank", "iso_code", "country", "score"}, scores[0])
	assert.Equal(t, []string{"1", "SSD", "South Sudan", "81.3"}, scores[1])
	assert.Equal(t, []string{"3", "ETH", "ETH"}, scores[3], "missing score is a blank cell")

	inds, err := f.GetRows(SheetIndicators)
	require.NoError(t, err)
	assert.Equal(t, []string{"iso_code", "country", "hunger", "reserves"}, inds[0])
	assert.Equal(t, []string{"ETH", "ETH", "", "-0.5"}, inds[3])

	stab, err := f.GetRows(SheetStability)
	require.NoError(t, err)
	assert.Len(t, stab, 3)
	assert.Equal(t, "KEN", stab[2][0])
	assert.Equal(t, []string{"2", "3", "1"}, stab[2][2:5])
}

func TestWriteWorkbook_WithoutOptionalSheets(t *testing.T) {
	r := sampleResults(t)
	r.Indicators = nil
	r.Stability = nil
	path := filepath.Join(t.TempDir(), "wb.xlsx")
	require.NoError(t, WriteWorkbook(path, r, nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetScores}, f.GetSheetList())
}
