package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ONEcampaign/toughest-places-index/internal/config"
	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/index"
	"github.com/ONEcampaign/toughest-places-index/internal/scaling"
	"github.com/ONEcampaign/toughest-places-index/internal/shared/testutil"
)

const registryCSV = `iso_code,name_short,continent,un_region,income_level
AAA,Aland,Europe,Northern Europe,High income
BBB,Borduria,Europe,Eastern Europe,Low income
CCC,Carpania,Africa,Eastern Africa,Low income
`

const hungerCSV = `iso_code,date,value
AAA,2020,1
AAA,2021,0
BBB,2021,10
CCC,2021,5
`

const reservesCSV = `iso_code,value
AAA,9
BBB,1
CCC,5
`

// fixtureConfig lays out a data directory and a configuration with two
// dimensions of one indicator each.
func fixtureConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(data, 0o755))
	for name, content := range map[string]string{
		"countries.csv": registryCSV,
		"hunger.csv":    hungerCSV,
		"reserves.csv":  reservesCSV,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(data, name), []byte(content), 0o644))
	}

	better := false
	cfg := config.Default()
	cfg.Paths.BaseDir = dir
	cfg.Pipeline.Scaler = "minmax"
	cfg.Pipeline.Imputer = "simple"
	cfg.Pipeline.ImputerParams = nil
	cfg.Diagnostics.NeighborRange = []int{1, 2}
	cfg.Diagnostics.TuningTrials = 5
	cfg.Diagnostics.TuningMissing = 0.2
	cfg.Indicators = []config.IndicatorConfig{
		{Name: "hunger", Dimension: "food", File: "hunger.csv", Latest: true},
		{Name: "reserves", Dimension: "economy", File: "reserves.csv", MoreIsWorse: &better},
	}
	return cfg
}

func newService(t *testing.T, cfg *config.Config) *IndexService {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	svc, err := NewIndexService(cfg, logger, nil)
	require.NoError(t, err)
	return svc
}

func unitScaler(t *testing.T) scaling.Scaler {
	t.Helper()
	s, err := scaling.NewMinMax(0, 1)
	require.NoError(t, err)
	return s
}

func TestIndexService_Build(t *testing.T) {
	svc := newService(t, fixtureConfig(t))

	ix, err := svc.Build(context.Background())
	require.NoError(t, err)

	dims := ix.Dimensions()
	require.Len(t, dims, 2)
	assert.Equal(t, "food", dims[0].Name())
	assert.Equal(t, "economy", dims[1].Name())

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, data.Index())
	assert.Equal(t, 0.0, data.Value("AAA", "hunger"), "latest value is kept")

	// copies are independent of the cached index
	require.NoError(t, ix.Rescale(unitScaler(t)))
	again, err := svc.Build(context.Background())
	require.NoError(t, err)
	raw, err := again.Data()
	require.NoError(t, err)
	assert.Equal(t, 10.0, raw.Value("BBB", "hunger"))
}

func TestIndexService_BuildErrors(t *testing.T) {
	t.Run("no indicators", func(t *testing.T) {
		cfg := fixtureConfig(t)
		cfg.Indicators = nil
		_, err := newService(t, cfg).Build(context.Background())
		assert.ErrorIs(t, err, ErrNoIndicators)
	})

	t.Run("missing source", func(t *testing.T) {
		cfg := fixtureConfig(t)
		cfg.Indicators[1].File = "absent.csv"
		_, err := newService(t, cfg).Build(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reserves")
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
	})

	t.Run("every bad source is reported", func(t *testing.T) {
		cfg := fixtureConfig(t)
		cfg.Indicators[0].File = "hunger.json"
		cfg.Indicators[1].File = "absent.csv"
		_, err := newService(t, cfg).Build(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "indicator hunger")
		assert.Contains(t, err.Error(), "indicator reserves")
	})

	t.Run("missing registry", func(t *testing.T) {
		cfg := fixtureConfig(t)
		cfg.Countries.RegistryFile = "data/none.csv"
		_, err := newService(t, cfg).Build(context.Background())
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
	})
}

func TestIndexService_StudyCountries(t *testing.T) {
	cfg := fixtureConfig(t)
	svc := newService(t, cfg)
	codes, err := svc.StudyCountries()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, codes)

	cfg = fixtureConfig(t)
	cfg.Countries.Sets = map[string][]string{"study": {"CCC", "AAA", "DDD"}}
	cfg.Countries.Exclude = []string{"DDD"}
	codes, err = newService(t, cfg).StudyCountries()
	require.NoError(t, err)
	assert.Equal(t, []string{"CCC", "AAA"}, codes)
}

func TestIndexService_Run(t *testing.T) {
	svc := newService(t, fixtureConfig(t))

	_, err := svc.Latest()
	assert.ErrorIs(t, err, ErrNoResults)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.True(t, res.Rescaled)
	assert.Equal(t, "minmax", res.Scaler)

	// minmax then the reserves sign flip gives means 0.5, 0 and -0.5,
	// which span the attainable range exactly
	assert.Equal(t, []string{"BBB", "CCC", "AAA"}, res.Scores.Index())
	assert.Equal(t, []float64{100, 50, 0}, res.Scores.Column(index.ScoreColumn))
	assert.Equal(t, []float64{-1, 0, -0.5}, res.Indicators.Column("reserves"))

	latest, err := svc.Latest()
	require.NoError(t, err)
	assert.Equal(t, res.ID, latest.ID)
}

func TestIndexService_RunWithoutSummary(t *testing.T) {
	cfg := fixtureConfig(t)
	cfg.Pipeline.Summarize = false
	svc := newService(t, cfg)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Scores)
	assert.Equal(t, 2, res.Indicators.Width())

	_, err = svc.Export(context.Background(), res, nil)
	assert.ErrorIs(t, err, apperrors.ErrPipelineState)
}

func TestIndexService_RunUnknownScaler(t *testing.T) {
	cfg := fixtureConfig(t)
	cfg.Pipeline.Scaler = "zscore"
	_, err := newService(t, cfg).Run(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnknownScaler)
}

func TestIndexService_Export(t *testing.T) {
	svc := newService(t, fixtureConfig(t))
	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	rep, err := svc.Stability(context.Background())
	require.NoError(t, err)

	written, err := svc.Export(context.Background(), res, rep)
	require.NoError(t, err)
	require.Len(t, written, 3)
	for _, p := range written {
		assert.FileExists(t, p)
	}

	content, err := os.ReadFile(svc.Paths().ScoresCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(string(content), "\ufeff")), "\n")
	assert.Equal(t, []string{
		"rank,iso_code,country,score",
		"1,BBB,Borduria,100.0",
		"2,CCC,Carpania,50.0",
		"3,AAA,Aland,0.0",
	}, lines)
}

func TestIndexService_Diagnose(t *testing.T) {
	svc := newService(t, fixtureConfig(t))

	rep, err := svc.Diagnose(context.Background(), DiagnosticsRequest{})
	require.NoError(t, err)
	assert.Equal(t, "overall", rep.Grouping)
	assert.Equal(t, []string{"reserves"}, rep.Collinearity["hunger"])
	assert.Equal(t, 0.0, rep.Missing["hunger"]["overall"])
	assert.Empty(t, rep.MissingCountries["hunger"]["overall"])
	assert.Contains(t, rep.MissingCountries, "reserves")
	assert.Equal(t, map[string]float64{"AAA": 0, "BBB": 0, "CCC": 0}, rep.MissingByCountry)
	assert.Equal(t, 0.33, rep.Zeros["hunger"]["overall"])
	assert.Empty(t, rep.Outliers["hunger"])
	require.NotNil(t, rep.PCA)
	assert.Equal(t, []string{"hunger", "reserves"}, rep.PCA.Columns)
	assert.Equal(t, 3, rep.PCA.Rows)

	grouped, err := svc.Diagnose(context.Background(), DiagnosticsRequest{
		Checks:   []Check{CheckZeros},
		Grouping: "income_level",
	})
	require.NoError(t, err)
	assert.Equal(t, "income_level", grouped.Grouping)
	assert.Equal(t, map[string]float64{"High income": 1, "Low income": 0}, grouped.Zeros["hunger"])
	assert.Nil(t, grouped.Missing)
	assert.Nil(t, grouped.MissingCountries)
	assert.Nil(t, grouped.PCA)
}

func TestIndexService_DiagnoseErrors(t *testing.T) {
	svc := newService(t, fixtureConfig(t))

	_, err := svc.Diagnose(context.Background(), DiagnosticsRequest{Grouping: "planet"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	_, err = svc.Diagnose(context.Background(), DiagnosticsRequest{Checks: []Check{"entropy"}})
	assert.ErrorIs(t, err, ErrUnknownCheck)

	_, err = svc.Diagnose(context.Background(), DiagnosticsRequest{Checks: []Check{CheckCollinearity}, Column: "rainfall"})
	assert.Error(t, err)
}

func TestParseCheck(t *testing.T) {
	for _, c := range Checks {
		got, err := ParseCheck(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCheck("nope")
	assert.True(t, errors.Is(err, ErrUnknownCheck))
}

func TestIndexService_Stability(t *testing.T) {
	svc := newService(t, fixtureConfig(t))

	rep, err := svc.Stability(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.Withheld, 1)
	assert.Len(t, rep.Shifts, 3)

	withheld := 0
	for _, s := range rep.Shifts {
		if s.Withheld {
			withheld++
			assert.Equal(t, rep.Withheld[0], s.ISOCode)
		}
	}
	assert.Equal(t, 1, withheld)
}

func TestIndexService_TuneNeighborRange(t *testing.T) {
	// no zero values, so every masked cell has a percentage deviation
	cfg := fixtureConfig(t)
	cfg.Pipeline.Scaler = ""
	path := filepath.Join(cfg.Paths.BaseDir, "data", "hunger.csv")
	require.NoError(t, os.WriteFile(path, []byte("iso_code,date,value\nAAA,2021,3\nBBB,2021,10\nCCC,2021,5\n"), 0o644))
	svc := newService(t, cfg)

	reports, err := svc.TuneNeighborRange(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].Neighbors)
	assert.Equal(t, 2, reports[1].Neighbors)
	for _, r := range reports {
		assert.Equal(t, 5, r.Trials)
		assert.Zero(t, r.Skipped)
	}

	again, err := svc.TuneNeighborRange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reports, again, "seeded trials repeat")

	cfg = fixtureConfig(t)
	cfg.Diagnostics.NeighborRange = nil
	_, err = newService(t, cfg).TuneNeighborRange(context.Background())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestBestNeighbors(t *testing.T) {
	reports := []*index.TuningReport{
		{Neighbors: 2, MeanAbsPctDeviation: 12},
		{Neighbors: 5, MeanAbsPctDeviation: 8},
		nil,
		{Neighbors: 10, MeanAbsPctDeviation: 9},
	}
	assert.Equal(t, 5, BestNeighbors(reports).Neighbors)
	assert.Nil(t, BestNeighbors(nil))
}

func TestIndexService_Reload(t *testing.T) {
	cfg := fixtureConfig(t)
	svc := newService(t, cfg)
	_, err := svc.Build(context.Background())
	require.NoError(t, err)

	path := filepath.Join(cfg.Paths.BaseDir, "data", "reserves.csv")
	require.NoError(t, os.WriteFile(path, []byte("iso_code,value\nAAA,2\nBBB,2\nCCC,2\n"), 0o644))

	ix, err := svc.Build(context.Background())
	require.NoError(t, err)
	data, _ := ix.Data()
	assert.Equal(t, 9.0, data.Value("AAA", "reserves"), "cached until reload")

	svc.Reload()
	ix, err = svc.Build(context.Background())
	require.NoError(t, err)
	data, _ = ix.Data()
	assert.Equal(t, 2.0, data.Value("AAA", "reserves"))
}
