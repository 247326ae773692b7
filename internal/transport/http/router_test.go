package http

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ONEcampaign/toughest-places-index/internal/config"
	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/index"
	"github.com/ONEcampaign/toughest-places-index/internal/services"
	"github.com/ONEcampaign/toughest-places-index/internal/shared/testutil"
	"github.com/ONEcampaign/toughest-places-index/internal/summary"
)

// MockResultsService is a mock implementation of ResultsServiceInterface
type MockResultsService struct {
	mock.Mock
}

func (m *MockResultsService) Latest() (*services.RunResult, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RunResult), args.Error(1)
}

func (m *MockResultsService) Names() map[string]string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]string)
}

// MockDiagnosticsService is a mock implementation of DiagnosticsServiceInterface
type MockDiagnosticsService struct {
	mock.Mock
}

func (m *MockDiagnosticsService) Diagnose(ctx context.Context, req services.DiagnosticsRequest) (*services.DiagnosticsReport, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DiagnosticsReport), args.Error(1)
}

func sampleRun(t *testing.T) *services.RunResult {
	t.Helper()
	scores := frame.MustNew([]string{"SSD", "KEN", "ETH"})
	require.NoError(t, scores.SetColumn(index.ScoreColumn, []float64{81.3, 40.0, math.NaN()}))

	inds := frame.MustNew([]string{"ETH", "KEN", "SSD"})
	require.NoError(t, inds.SetColumn("hunger", []float64{math.NaN(), 0.2, 0.9}))
	require.NoError(t, inds.SetColumn("reserves", []float64{-0.5, -0.1, -1}))

	return &services.RunResult{
		ID:          "run-7",
		Scores:      scores,
		Indicators:  inds,
		Scaler:      "minmax",
		Imputer:     "knn",
		Rescaled:    true,
		CompletedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

var sampleNames = map[string]string{"SSD": "South Sudan", "KEN": "Kenya"}

type fixture struct {
	results     *MockResultsService
	diagnostics *MockDiagnosticsService
	router      http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	dir := t.TempDir()
	registry := filepath.Join(dir, "countries.csv")
	require.NoError(t, os.WriteFile(registry, []byte(testutil.RegistryCSV), 0o644))
	paths := &config.Paths{DataDir: dir, RegistryFile: registry}

	f := &fixture{results: new(MockResultsService), diagnostics: new(MockDiagnosticsService)}
	f.router = NewRouter(RouterDeps{
		Health:      services.NewHealthService("1.0.0", "", paths, f.results, logger),
		Results:     f.results,
		Diagnostics: f.diagnostics,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		Logger: logger,
	})
	return f
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestScores(t *testing.T) {
	f := newFixture(t)
	f.results.On("Latest").Return(sampleRun(t), nil)
	f.results.On("Names").Return(sampleNames)

	rec := f.get(t, "/api/v1/scores")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp ScoresResponse
	decode(t, rec, &resp)
	assert.Equal(t, "run-7", resp.RunID)
	assert.Equal(t, "minmax", resp.Scaler)
	assert.True(t, resp.Rescaled)
	require.Equal(t, 3, resp.Count)
	assert.Equal(t, ScoreEntry{Rank: 1, ISOCode: "SSD", Country: "South Sudan", Score: ptr(81.3)}, resp.Scores[0])
	assert.Equal(t, "Kenya", resp.Scores[1].Country)
	assert.Equal(t, "ETH", resp.Scores[2].Country)
	assert.Nil(t, resp.Scores[2].Score)
}

func TestScores_Filters(t *testing.T) {
	f := newFixture(t)
	f.results.On("Latest").Return(sampleRun(t), nil)
	f.results.On("Names").Return(sampleNames)

	t.Run("limit", func(t *testing.T) {
		var resp ScoresResponse
		decode(t, f.get(t, "/api/v1/scores?limit=1"), &resp)
		require.Len(t, resp.Scores, 1)
		assert.Equal(t, "SSD", resp.Scores[0].ISOCode)
	})

	t.Run("countries keep their rank", func(t *testing.T) {
		var resp ScoresResponse
		decode(t, f.get(t, "/api/v1/scores?countries=KEN,ETH"), &resp)
		require.Len(t, resp.Scores, 2)
		assert.Equal(t, 2, resp.Scores[0].Rank)
		assert.Equal(t, 3, resp.Scores[1].Rank)
	})
}

func TestScores_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		latest     *services.RunResult
		latestErr  error
		wantStatus int
		wantType   string
	}{
		{
			name:       "bad limit",
			target:     "/api/v1/scores?limit=abc",
			wantStatus: http.StatusBadRequest,
			wantType:   apperrors.TypeValidation,
		},
		{
			name:       "limit out of range",
			target:     "/api/v1/scores?limit=5000",
			wantStatus: http.StatusBadRequest,
			wantType:   apperrors.TypeValidation,
		},
		{
			name:       "bad country code",
			target:     "/api/v1/scores?countries=KE",
			wantStatus: http.StatusBadRequest,
			wantType:   apperrors.TypeValidation,
		},
		{
			name:   "no run yet",
			target: "/api/v1/scores",
			latestErr: apperrors.NewAppError(apperrors.ErrTypeNotFound,
				"index results not available", services.ErrNoResults),
			wantStatus: http.StatusNotFound,
			wantType:   apperrors.TypeNotFound,
		},
		{
			name:       "run without scores",
			target:     "/api/v1/scores",
			latest:     &services.RunResult{ID: "run-8"},
			wantStatus: http.StatusConflict,
			wantType:   apperrors.TypeNotComputed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.results.On("Latest").Return(tt.latest, tt.latestErr).Maybe()
			f.results.On("Names").Return(sampleNames).Maybe()

			rec := f.get(t, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)

			var problem map[string]any
			decode(t, rec, &problem)
			assert.Equal(t, tt.wantType, problem["type"])
			assert.NotEmpty(t, problem["trace_id"])
		})
	}
}

func TestIndicators(t *testing.T) {
	f := newFixture(t)
	f.results.On("Latest").Return(sampleRun(t), nil)
	f.results.On("Names").Return(sampleNames)

	rec := f.get(t, "/api/v1/indicators?countries=ETH,SSD")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp IndicatorsResponse
	decode(t, rec, &resp)
	assert.Equal(t, []string{"hunger", "reserves"}, resp.Columns)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "ETH", resp.Rows[0].ISOCode)
	assert.Nil(t, resp.Rows[0].Values["hunger"])
	assert.Equal(t, ptr(-0.5), resp.Rows[0].Values["reserves"])
	assert.Equal(t, "South Sudan", resp.Rows[1].Country)
}

func TestDiagnostics(t *testing.T) {
	f := newFixture(t)
	report := &services.DiagnosticsReport{
		Grouping: "income_level",
		Zeros:    map[string]map[string]float64{"High income": {"hunger": 1}},
	}
	f.diagnostics.On("Diagnose", services.DiagnosticsRequest{
		Checks:   []services.Check{services.CheckZeros},
		Grouping: "income_level",
	}).Return(report, nil)

	rec := f.get(t, "/api/v1/diagnostics/zeros?group_by=income_level")
	require.Equal(t, http.StatusOK, rec.Code)

	var got services.DiagnosticsReport
	decode(t, rec, &got)
	assert.Equal(t, *report, got)
	f.diagnostics.AssertExpectations(t)
}

func TestDiagnostics_Collinearity(t *testing.T) {
	f := newFixture(t)
	f.diagnostics.On("Diagnose", services.DiagnosticsRequest{
		Checks: []services.Check{services.CheckCollinearity},
		Column: "hunger",
	}).Return(&services.DiagnosticsReport{
		Grouping:     summary.Overall,
		Collinearity: map[string][]string{"hunger": {"reserves"}},
	}, nil)

	rec := f.get(t, "/api/v1/diagnostics/collinearity?column=hunger")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"grouping":"overall","collinearity":{"hunger":["reserves"]}}`, rec.Body.String())
}

func TestDiagnostics_Errors(t *testing.T) {
	f := newFixture(t)
	f.diagnostics.On("Diagnose", mock.Anything).
		Return(nil, apperrors.NewStateError("aggregate table is empty"))

	t.Run("unknown check", func(t *testing.T) {
		rec := f.get(t, "/api/v1/diagnostics/entropy")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad grouping", func(t *testing.T) {
		rec := f.get(t, "/api/v1/diagnostics/missing?group_by=planet")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("service error", func(t *testing.T) {
		rec := f.get(t, "/api/v1/diagnostics/outliers")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHealthRoutes(t *testing.T) {
	t.Run("ready after a run", func(t *testing.T) {
		f := newFixture(t)
		f.results.On("Latest").Return(sampleRun(t), nil)

		assert.Equal(t, http.StatusOK, f.get(t, "/healthz").Code)
		assert.Equal(t, http.StatusOK, f.get(t, "/healthz/ready").Code)
		assert.Equal(t, http.StatusOK, f.get(t, "/healthz/live").Code)

		var version map[string]any
		decode(t, f.get(t, "/version"), &version)
		assert.Equal(t, "1.0.0", version["version"])
	})

	t.Run("not ready before a run", func(t *testing.T) {
		f := newFixture(t)
		f.results.On("Latest").Return(nil, services.ErrNoResults)

		rec := f.get(t, "/healthz/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var status services.HealthStatus
		decode(t, rec, &status)
		assert.Equal(t, "not_ready", status.Status)
	})
}

func TestRouter_Misc(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")

	rec = f.get(t, "/api/v1/nothing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scores", nil)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	results := new(MockResultsService)
	results.On("Latest").Return(sampleRun(t), nil)
	results.On("Names").Return(sampleNames)

	router := NewRouter(RouterDeps{
		Results:   results,
		RateLimit: config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1},
		Logger:    logger,
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scores", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func ptr(v float64) *float64 { return &v }
