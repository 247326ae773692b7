package http

import (
	"log/slog"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/render"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/index"
	"github.com/ONEcampaign/toughest-places-index/internal/middleware"
)

const maxScoresLimit = 1000

// ScoreEntry is one ranked country. Score is null when the country has no
// observed indicator.
type ScoreEntry struct {
	Rank    int      `json:"rank"`
	ISOCode string   `json:"iso_code"`
	Country string   `json:"country"`
	Score   *float64 `json:"score"`
}

// ScoresResponse is the body of GET /api/v1/scores.
type ScoresResponse struct {
	RunID       string       `json:"run_id"`
	Scaler      string       `json:"scaler"`
	Imputer     string       `json:"imputer"`
	Rescaled    bool         `json:"rescaled"`
	CompletedAt time.Time    `json:"completed_at"`
	Count       int          `json:"count"`
	Scores      []ScoreEntry `json:"scores"`
}

// IndicatorRow holds one country's polarity-corrected indicator values.
type IndicatorRow struct {
	ISOCode string              `json:"iso_code"`
	Country string              `json:"country"`
	Values  map[string]*float64 `json:"values"`
}

// IndicatorsResponse is the body of GET /api/v1/indicators.
type IndicatorsResponse struct {
	RunID   string         `json:"run_id"`
	Columns []string       `json:"columns"`
	Rows    []IndicatorRow `json:"rows"`
}

// ResultsHandler serves the latest pipeline run.
type ResultsHandler struct {
	service      ResultsServiceInterface
	validator    *middleware.QueryParamValidator
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewResultsHandler creates a new results handler
func NewResultsHandler(service ResultsServiceInterface, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *ResultsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	return &ResultsHandler{
		service:      service,
		validator:    middleware.NewQueryParamValidator(logger, errorHandler),
		logger:       logger.With(slog.String("component", "results_handler")),
		errorHandler: errorHandler,
	}
}

// GetScores handles GET /api/v1/scores?limit=&countries=
func (h *ResultsHandler) GetScores(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.validator.ValidateInt(w, r, "limit", 0, maxScoresLimit, 0)
	if !ok {
		return
	}
	codes, ok := h.validator.ValidateCountryCodes(w, r, "countries")
	if !ok {
		return
	}

	res, err := h.service.Latest()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if res.Scores == nil {
		h.errorHandler.HandleError(w, r, apperrors.NewStateError("the latest run was not summarized into scores"))
		return
	}

	names := h.service.Names()
	entries := make([]ScoreEntry, 0, res.Scores.Len())
	for i, code := range res.Scores.Index() {
		if codes != nil && !slices.Contains(codes, code) {
			continue
		}
		entries = append(entries, ScoreEntry{
			Rank:    i + 1,
			ISOCode: code,
			Country: nameOr(names, code),
			Score:   nullable(res.Scores.Value(code, index.ScoreColumn)),
		})
		if limit > 0 && len(entries) == limit {
			break
		}
	}

	h.logger.DebugContext(r.Context(), "serving scores",
		slog.String("run_id", res.ID),
		slog.Int("count", len(entries)))

	render.JSON(w, r, ScoresResponse{
		RunID:       res.ID,
		Scaler:      res.Scaler,
		Imputer:     res.Imputer,
		Rescaled:    res.Rescaled,
		CompletedAt: res.CompletedAt,
		Count:       len(entries),
		Scores:      entries,
	})
}

// GetIndicators handles GET /api/v1/indicators?countries=
func (h *ResultsHandler) GetIndicators(w http.ResponseWriter, r *http.Request) {
	codes, ok := h.validator.ValidateCountryCodes(w, r, "countries")
	if !ok {
		return
	}

	res, err := h.service.Latest()
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if res.Indicators == nil {
		h.errorHandler.HandleError(w, r, apperrors.NewStateError("the latest run has no indicator table"))
		return
	}

	names := h.service.Names()
	render.JSON(w, r, indicatorsResponse(res.ID, res.Indicators, names, codes))
}

func indicatorsResponse(runID string, data *frame.Frame, names map[string]string, codes []string) IndicatorsResponse {
	resp := IndicatorsResponse{
		RunID:   runID,
		Columns: data.Columns(),
		Rows:    make([]IndicatorRow, 0, data.Len()),
	}
	for _, code := range data.Index() {
		if codes != nil && !slices.Contains(codes, code) {
			continue
		}
		row := IndicatorRow{
			ISOCode: code,
			Country: nameOr(names, code),
			Values:  make(map[string]*float64, len(resp.Columns)),
		}
		for _, c := range resp.Columns {
			row.Values[c] = nullable(data.Value(code, c))
		}
		resp.Rows = append(resp.Rows, row)
	}
	return resp
}

func nameOr(names map[string]string, code string) string {
	if name, ok := names[code]; ok {
		return name
	}
	return code
}

// nullable maps the NaN null marker onto a JSON null.
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
