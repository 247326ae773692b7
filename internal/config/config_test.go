package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
)

const sampleYAML = `
logging:
  level: debug
server:
  port: 9090
  read_timeout: 5s
pipeline:
  scaler: robust
  scaler_params:
    quantile_range: [10, 90]
  imputer: income
  imputer_params:
    strategy: mean
countries:
  registry_file: countries.csv
  study: study
  sets:
    study: [KEN, UGA, ETH]
    no_hics: [KEN, UGA]
  exclude: [ETH]
indicators:
  - name: Insufficient food consumption
    dimension: Food
    file: hunger.csv
    latest: true
    fill_value: 0
  - name: Reserves
    dimension: Finance
    file: reserves.xlsx
    sheet: data
    more_is_worse: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tpi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, sampleYAML)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format, "unset keys keep their default")
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, "robust", cfg.Pipeline.Scaler)
		assert.Equal(t, []interface{}{10, 90}, cfg.Pipeline.ScalerParams["quantile_range"])
		assert.Equal(t, "mean", cfg.Pipeline.ImputerParams["strategy"])
		assert.Equal(t, []string{"KEN", "UGA", "ETH"}, cfg.Countries.Sets["study"])
		assert.Equal(t, filepath.Dir(path), cfg.Paths.BaseDir)

		require.Len(t, cfg.Indicators, 2)
		assert.True(t, cfg.Indicators[0].Worse())
		require.NotNil(t, cfg.Indicators[0].FillValue)
		assert.Equal(t, 0.0, *cfg.Indicators[0].FillValue)
		assert.False(t, cfg.Indicators[1].Worse())
		assert.Equal(t, "data", cfg.Indicators[1].Sheet)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, sampleYAML)
		t.Setenv("TPI_SERVER_PORT", "7070")
		t.Setenv("TPI_PIPELINE_SCALER", "standard")
		t.Setenv("TPI_DIAGNOSTICS_NEIGHBOR_RANGE", "3,4")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, "standard", cfg.Pipeline.Scaler)
		assert.Equal(t, []int{3, 4}, cfg.Diagnostics.NeighborRange)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeConfig(t, "pipline:\n  scaler: robust\n"))
		assert.Error(t, err)
	})

	t.Run("shipped example", func(t *testing.T) {
		cfg, err := Load(filepath.Join("..", "..", "configs", "tpi.example.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 10*time.Minute, cfg.Diagnostics.Timeout)
		assert.Len(t, cfg.Indicators, 3)
		assert.Contains(t, cfg.Countries.Sets, "lics_lmics")
		assert.False(t, cfg.Indicators[0].FillValue == nil)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"unknown outlier method", func(c *Config) { c.Diagnostics.OutlierMethod = "zscore" }, true},
		{"stability share above one", func(c *Config) { c.Diagnostics.StabilityShare = 1.5 }, true},
		{"neighbour candidate below one", func(c *Config) { c.Diagnostics.NeighborRange = []int{0} }, true},
		{"crossed collinearity bounds", func(c *Config) {
			c.Diagnostics.CollinearityLow = 0.8
		}, true},
		{"study set not configured", func(c *Config) {
			c.Countries.Sets = map[string][]string{"other": {"KEN"}}
		}, true},
		{"indicator without file", func(c *Config) {
			c.Indicators = []IndicatorConfig{{Name: "a", Dimension: "d"}}
		}, true},
		{"duplicate indicator", func(c *Config) {
			c.Indicators = []IndicatorConfig{
				{Name: "a", Dimension: "d", File: "a.csv"},
				{Name: "a", Dimension: "e", File: "b.csv"},
			}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
				return
			}
			assert.NoError(t, err)
		})
	}

	cfg := Default()
	cfg.Indicators = []IndicatorConfig{{Name: "a", Dimension: "d", File: "a.csv"}, {Name: "a", Dimension: "d", File: "a.csv"}}
	assert.True(t, errors.Is(cfg.Validate(), apperrors.ErrDuplicateKey))
}

func TestGetPaths(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Paths.BaseDir = base
	cfg.Paths.OutputDir = "out"

	paths, err := cfg.GetPaths()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "data"), paths.DataDir)
	assert.Equal(t, filepath.Join(base, "out", ScoresCSVName), paths.ScoresCSV)
	assert.Equal(t, filepath.Join(base, "out", WorkbookName), paths.Workbook)
	assert.Equal(t, filepath.Join(base, "data", "countries.csv"), paths.RegistryFile)
	assert.Equal(t, filepath.Join(base, "data", "hunger.csv"), paths.IndicatorFile("hunger.csv"))
	assert.Equal(t, "/abs/x.csv", paths.IndicatorFile("/abs/x.csv"))

	require.NoError(t, paths.EnsureDirectories())
	assert.True(t, FileExists(paths.OutputDir))
	assert.True(t, FileExists(paths.LogsDir))
	assert.False(t, FileExists(filepath.Join(base, "missing")))
}

func TestResolve(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "a.csv", cfg.Resolve("a.csv"))

	cfg.Paths.BaseDir = "/srv/tpi"
	assert.Equal(t, filepath.Join("/srv/tpi", "a.csv"), cfg.Resolve("a.csv"))
	assert.Equal(t, "/tmp/a.csv", cfg.Resolve("/tmp/a.csv"))
}
