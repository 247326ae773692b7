package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "without cause",
			appError: &AppError{Type: ErrTypeValidation, Message: "bad share"},
			want:     "[VALIDATION] bad share",
		},
		{
			name:     "with cause",
			appError: &AppError{Type: ErrTypeState, Message: "scores missing", Cause: ErrPipelineState},
			want:     "[STATE] scores missing: pipeline state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appError.Error())
		})
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		errType  ErrorType
	}{
		{"schema", NewSchemaError([]string{"value", "iso_code"}), ErrSchema, ErrTypeSchema},
		{"duplicate", NewDuplicateKeyError("indicator inflation", "KEN"), ErrDuplicateKey, ErrTypeDuplicateKey},
		{"scaler", NewUnknownScalerError("zscore", []string{"standard"}), ErrUnknownScaler, ErrTypeUnknownName},
		{"imputer", NewUnknownImputerError("mice", []string{"simple"}), ErrUnknownImputer, ErrTypeUnknownName},
		{"orientation", NewOrientationError("diagonal"), ErrInvalidOrientation, ErrTypeOrientation},
		{"state", NewStateError("not computed"), ErrPipelineState, ErrTypeState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("building index: %w", tt.err)
			assert.True(t, stderrors.Is(wrapped, tt.sentinel))
			assert.True(t, IsType(wrapped, tt.errType))
		})
	}
}

func TestNewSchemaError_SortsMissingColumns(t *testing.T) {
	err := NewSchemaError([]string{"value", "iso_code"})
	assert.Equal(t, "iso_code, value missing from table columns", err.Message)
	assert.Equal(t, []string{"iso_code", "value"}, err.Context["missing"])
}

func TestNewUnknownScalerError_ListsAvailable(t *testing.T) {
	err := NewUnknownScalerError("zscore", []string{"standard", "minmax"})
	assert.Contains(t, err.Error(), "standard, minmax")
	assert.Contains(t, err.Error(), `"zscore"`)
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"state error", NewStateError("index has not been computed"), http.StatusConflict, TypeNotComputed},
		{"unknown scaler", NewUnknownScalerError("x", []string{"standard"}), http.StatusBadRequest, TypeUnknownName},
		{"api error", InvalidParameter("by", stderrors.New("unknown grouping")), http.StatusBadRequest, TypeValidation},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError, TypeInternal},
	}

	h := NewErrorHandler(nil, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/scores", nil)
			rec := httptest.NewRecorder()

			h.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, "/api/v1/scores", body["instance"])
		})
	}
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	pd := NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found", "", "/x").
		WithExtension("trace_id", "abc")

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "abc", body["trace_id"])
	assert.Equal(t, float64(404), body["status"])
	assert.NotContains(t, body, "detail")
}
