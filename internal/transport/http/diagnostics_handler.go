package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/ONEcampaign/toughest-places-index/internal/countries"
	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/middleware"
	"github.com/ONEcampaign/toughest-places-index/internal/services"
	"github.com/ONEcampaign/toughest-places-index/internal/summary"
)

var groupings = []string{
	summary.Overall,
	string(countries.ByContinent),
	string(countries.ByUNRegion),
	string(countries.ByIncomeLevel),
}

type checkCtxKey struct{}

// DiagnosticsHandler runs one data-quality audit per request.
type DiagnosticsHandler struct {
	service      DiagnosticsServiceInterface
	validator    *middleware.QueryParamValidator
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewDiagnosticsHandler creates a new diagnostics handler
func NewDiagnosticsHandler(service DiagnosticsServiceInterface, logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *DiagnosticsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	return &DiagnosticsHandler{
		service:      service,
		validator:    middleware.NewQueryParamValidator(logger, errorHandler),
		logger:       logger.With(slog.String("component", "diagnostics_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the diagnostics routes
func (h *DiagnosticsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.With(h.CheckCtx).Get("/{check}", h.GetDiagnostic)
	return r
}

// CheckCtx validates the check path parameter.
func (h *DiagnosticsHandler) CheckCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "check")
		check, err := services.ParseCheck(name)
		if err != nil {
			h.errorHandler.HandleError(w, r, apperrors.NewAppError(apperrors.ErrTypeNotFound,
				fmt.Sprintf("diagnostic %q does not exist", name), services.ErrUnknownCheck))
			return
		}
		ctx := context.WithValue(r.Context(), checkCtxKey{}, check)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetDiagnostic handles GET /api/v1/diagnostics/{check}?group_by=&column=
func (h *DiagnosticsHandler) GetDiagnostic(w http.ResponseWriter, r *http.Request) {
	check, _ := r.Context().Value(checkCtxKey{}).(services.Check)

	grouping, ok := h.validator.ValidateEnum(w, r, "group_by", groupings, "")
	if !ok {
		return
	}

	rep, err := h.service.Diagnose(r.Context(), services.DiagnosticsRequest{
		Checks:   []services.Check{check},
		Grouping: grouping,
		Column:   r.URL.Query().Get("column"),
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "diagnostic completed",
		slog.String("check", string(check)),
		slog.String("grouping", rep.Grouping))
	render.JSON(w, r, rep)
}
