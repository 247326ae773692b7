package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Problem types following RFC 7807
const (
	TypeValidation   = "/errors/validation"
	TypeNotFound     = "/errors/not-found"
	TypeRateLimit    = "/errors/rate-limit"
	TypeInternal     = "/errors/internal"
	TypeTimeout      = "/errors/timeout"
	TypeNotComputed  = "/errors/index/not-computed"
	TypeUnknownName  = "/errors/index/unknown-name"
	TypeOrientation  = "/errors/index/orientation"
	TypeSchema       = "/errors/data/schema"
	TypeDuplicateKey = "/errors/data/duplicate-key"
)

type problemKind struct {
	status int
	typ    string
}

// appErrorKinds maps domain error types onto HTTP. Types not listed are
// internal errors.
var appErrorKinds = map[ErrorType]problemKind{
	ErrTypeState:        {http.StatusConflict, TypeNotComputed},
	ErrTypeUnknownName:  {http.StatusBadRequest, TypeUnknownName},
	ErrTypeOrientation:  {http.StatusBadRequest, TypeOrientation},
	ErrTypeValidation:   {http.StatusBadRequest, TypeValidation},
	ErrTypeNotFound:     {http.StatusNotFound, TypeNotFound},
	ErrTypeSchema:       {http.StatusUnprocessableEntity, TypeSchema},
	ErrTypeDuplicateKey: {http.StatusUnprocessableEntity, TypeDuplicateKey},
}

var apiErrorTypes = map[string]string{
	CodeInvalidParameter: TypeValidation,
	CodeRateLimited:      TypeRateLimit,
}

// ErrorHandler answers failed requests with problem details and logs them
// with the request id.
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler. includeStack adds the
// goroutine stack to every problem and is meant for development.
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError renders err as problem details.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	reqID := middleware.GetReqID(r.Context())
	problem := h.ErrorToProblem(err, r)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem.WithExtension("trace_id", reqID)
	if h.includeStack {
		problem.WithExtension("stack", stackTrace())
	}
	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to problem details. Timeouts win over
// the error's own type, then API errors, then AppErrors.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout, "Request Timeout",
			"the computation took too long and was cancelled", r.URL.Path)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		typ, ok := apiErrorTypes[apiErr.Code]
		if !ok {
			typ = TypeInternal
		}
		problem := NewProblemDetails(apiErr.StatusCode, typ, http.StatusText(apiErr.StatusCode), apiErr.Message, r.URL.Path).
			WithExtension("error_code", apiErr.Code)
		if apiErr.Details != nil {
			problem.WithExtension("details", apiErr.Details)
		}
		return problem
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		kind, ok := appErrorKinds[appErr.Type]
		if !ok {
			kind = problemKind{http.StatusInternalServerError, TypeInternal}
		}
		problem := NewProblemDetails(kind.status, kind.typ, http.StatusText(kind.status), appErr.Message, r.URL.Path).
			WithExtension("error_type", string(appErr.Type))
		for k, v := range appErr.Context {
			problem.WithExtension(k, v)
		}
		return problem
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		"an unexpected error occurred", r.URL.Path)
}

// NotFound answers unknown routes.
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found",
		"no route for this path", r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context())))
}

// MethodNotAllowed answers known routes called with the wrong method.
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, NewProblemDetails(http.StatusMethodNotAllowed, TypeValidation, "Method Not Allowed",
		fmt.Sprintf("method %s is not allowed here, the API is read-only", r.Method), r.URL.Path).
		WithExtension("trace_id", middleware.GetReqID(r.Context())))
}

func stackTrace() string {
	buf := make([]byte, 8<<10)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
