package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
)

// QueryParamValidator validates query parameters and answers invalid ones
// with a 400 problem.
type QueryParamValidator struct {
	validate     *validator.Validate
	logger       *slog.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewQueryParamValidator creates a new query parameter validator
func NewQueryParamValidator(logger *slog.Logger, errorHandler *apperrors.ErrorHandler) *QueryParamValidator {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	return &QueryParamValidator{
		validate:     validator.New(),
		logger:       logger.With(slog.String("component", "query_validator")),
		errorHandler: errorHandler,
	}
}

func (v *QueryParamValidator) reject(w http.ResponseWriter, r *http.Request, param string, err error) {
	v.logger.DebugContext(r.Context(), "invalid query parameter",
		slog.String("param", param),
		slog.String("error", err.Error()))
	v.errorHandler.HandleError(w, r, apperrors.InvalidParameter(param, err))
}

// ValidateInt validates an integer query parameter
func (v *QueryParamValidator) ValidateInt(w http.ResponseWriter, r *http.Request, param string, min, max int, defaultValue int) (int, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue, true
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		v.reject(w, r, param, fmt.Errorf("%s must be a valid integer", param))
		return 0, false
	}
	if err := v.validate.Var(n, fmt.Sprintf("min=%d,max=%d", min, max)); err != nil {
		v.reject(w, r, param, fmt.Errorf("%s must be between %d and %d", param, min, max))
		return 0, false
	}
	return n, true
}

// ValidateEnum validates an enum query parameter
func (v *QueryParamValidator) ValidateEnum(w http.ResponseWriter, r *http.Request, param string, allowed []string, defaultValue string) (string, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue, true
	}
	if err := v.validate.Var(value, "oneof="+strings.Join(allowed, " ")); err != nil {
		v.reject(w, r, param, fmt.Errorf("%s must be one of: %s", param, strings.Join(allowed, ", ")))
		return "", false
	}
	return value, true
}

// ValidateCountryCodes validates a comma separated list of ISO-3166
// alpha-3 codes. An absent parameter yields nil.
func (v *QueryParamValidator) ValidateCountryCodes(w http.ResponseWriter, r *http.Request, param string) ([]string, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return nil, true
	}
	codes := strings.Split(value, ",")
	for i, code := range codes {
		codes[i] = strings.TrimSpace(code)
		if err := v.validate.Var(codes[i], "len=3,alpha,uppercase"); err != nil {
			v.reject(w, r, param, fmt.Errorf("%q is not an ISO-3166 alpha-3 code", codes[i]))
			return nil, false
		}
	}
	return codes, true
}
