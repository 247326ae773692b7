package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Codes carried by APIError.
const (
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
)

// APIError is a transport failure that did not come from the index
// itself, such as a malformed query parameter or a throttled client.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Is matches API errors by code so that errors.Is works on copies
// carrying details.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// NewAPIError creates an APIError.
func NewAPIError(statusCode int, code, message string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Message: message}
}

// WithDetails returns a copy carrying details.
func (e *APIError) WithDetails(details any) *APIError {
	out := *e
	out.Details = details
	return &out
}

var (
	ErrRateLimitExceeded = NewAPIError(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, retry later")
	ErrInternalServer    = NewAPIError(http.StatusInternalServerError, CodeInternal, "internal server error")
)

// InvalidParameter reports a rejected query parameter.
func InvalidParameter(name string, err error) *APIError {
	return NewAPIError(http.StatusBadRequest, CodeInvalidParameter, fmt.Sprintf("invalid value for %s", name)).
		WithDetails(err.Error())
}
