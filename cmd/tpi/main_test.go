package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ONEcampaign/toughest-places-index/internal/infrastructure"
)

const testYAML = `logging:
  level: error
telemetry:
  service_name: tpi-test
  enable_metrics: false
  metric_exporter: none
pipeline:
  scaler: minmax
  imputer: knn
  imputer_params:
    n_neighbors: 1
  summarize: true
  rescale_index: true
  score_precision: 1
diagnostics:
  neighbor_range: [1, 2]
  tuning_trials: 3
  tuning_missing_share: 0.3
countries:
  registry_file: data/countries.csv
  study: study
indicators:
  - name: hunger
    dimension: food
    file: hunger.csv
  - name: reserves
    dimension: economy
    file: reserves.csv
    more_is_worse: false
`

func writeProject(t *testing.T) string {
	t.Helper()
	t.Cleanup(infrastructure.ResetLoggerForTesting)

	dir := t.TempDir()
	files := map[string]string{
		"tpi.yaml": testYAML,
		"data/countries.csv": "iso_code,name_short,continent,un_region,income_level\n" +
			"AAA,Aland,Europe,Northern Europe,High income\n" +
			"BBB,Borduria,Europe,Eastern Europe,Low income\n" +
			"CCC,Carpania,Africa,Eastern Africa,Low income\n",
		"data/hunger.csv":   "iso_code,value\nAAA,2\nBBB,10\nCCC,5\n",
		"data/reserves.csv": "iso_code,value\nAAA,9\nBBB,1\nCCC,5\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return filepath.Join(dir, "tpi.yaml")
}

func TestRun_Pipeline(t *testing.T) {
	cfg := writeProject(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"-config", cfg, "run", "-top", "2"}, &out))

	text := out.String()
	assert.Contains(t, text, "index_scores.csv")
	assert.Contains(t, text, "index_results_detailed.xlsx")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, []string{"rank", "iso_code", "country", "score"}, strings.Fields(lines[len(lines)-3]))
	assert.Equal(t, []string{"1", "BBB", "Borduria", "100.0"}, strings.Fields(lines[len(lines)-2]))
	assert.Equal(t, "2", strings.Fields(lines[len(lines)-1])[0])

	assert.FileExists(t, filepath.Join(filepath.Dir(cfg), "output", "index_scores.csv"))
}

func TestRun_NoExport(t *testing.T) {
	cfg := writeProject(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"-config", cfg, "run", "-no-export"}, &out))
	assert.NotContains(t, out.String(), "wrote")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(cfg), "output", "index_scores.csv"))
}

func TestRun_Diagnose(t *testing.T) {
	cfg := writeProject(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"-config", cfg, "diagnose", "-checks", "missing,zeros", "-group-by", "income_level"}, &out))

	var rep map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, "income_level", rep["grouping"])
	assert.Contains(t, rep, "missing")
	assert.Contains(t, rep, "zeros")
	assert.NotContains(t, rep, "pca")
}

func TestRun_Stability(t *testing.T) {
	cfg := writeProject(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"-config", cfg, "stability", "-json"}, &out))
	text := out.String()
	assert.Contains(t, text, "stability.csv")

	var rep struct {
		Withheld []string    `json:"withheld"`
		Shifts   []shiftJSON `json:"shifts"`
	}
	require.NoError(t, json.Unmarshal([]byte(text[strings.Index(text, "{"):]), &rep))
	assert.Len(t, rep.Shifts, 3)
}

func TestRun_Tune(t *testing.T) {
	cfg := writeProject(t)
	var out bytes.Buffer

	require.NoError(t, run([]string{"-config", cfg, "tune"}, &out))
	assert.Contains(t, out.String(), "neighbors")
}

func TestRun_Errors(t *testing.T) {
	cfg := writeProject(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no command", []string{"-config", cfg}},
		{"unknown command", []string{"-config", cfg, "publish"}},
		{"bad flag", []string{"-config", cfg, "run", "-top", "x"}},
		{"unknown check", []string{"-config", cfg, "diagnose", "-checks", "entropy"}},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "absent.yaml"), "run"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Error(t, run(tt.args, &out))
		})
	}
}
