package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeSchema       ErrorType = "SCHEMA"
	ErrTypeDuplicateKey ErrorType = "DUPLICATE_KEY"
	ErrTypeUnknownName  ErrorType = "UNKNOWN_NAME"
	ErrTypeOrientation  ErrorType = "ORIENTATION"
	ErrTypeState        ErrorType = "STATE"
	ErrTypeParsing      ErrorType = "PARSING"
	ErrTypeStorage      ErrorType = "STORAGE"
	ErrTypeValidation   ErrorType = "VALIDATION"
	ErrTypeNotFound     ErrorType = "NOT_FOUND"
	ErrTypeConfig       ErrorType = "CONFIG"
)

// Sentinel causes for the index error taxonomy. AppErrors built by the
// constructors below wrap one of these so callers can use errors.Is.
var (
	ErrSchema             = stderrors.New("schema error")
	ErrDuplicateKey       = stderrors.New("duplicate key")
	ErrUnknownScaler      = stderrors.New("unknown scaler")
	ErrUnknownImputer     = stderrors.New("unknown imputer")
	ErrInvalidOrientation = stderrors.New("invalid orientation")
	ErrPipelineState      = stderrors.New("pipeline state")
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewSchemaError reports required columns missing from a source table.
func NewSchemaError(missing []string) *AppError {
	sorted := append([]string(nil), missing...)
	sort.Strings(sorted)
	return NewAppError(ErrTypeSchema,
		fmt.Sprintf("%s missing from table columns", strings.Join(sorted, ", ")),
		ErrSchema,
	).WithContext("missing", sorted)
}

// NewDuplicateKeyError reports a key that appears more than once where
// keys must be unique.
func NewDuplicateKeyError(scope, key string) *AppError {
	return NewAppError(ErrTypeDuplicateKey,
		fmt.Sprintf("%q appears more than once in %s", key, scope),
		ErrDuplicateKey,
	).WithContext("key", key)
}

// NewUnknownScalerError reports an unregistered scaler name and lists
// the available ones.
func NewUnknownScalerError(name string, available []string) *AppError {
	return NewAppError(ErrTypeUnknownName,
		fmt.Sprintf("scaler %q is not available, use one of: %s", name, strings.Join(available, ", ")),
		ErrUnknownScaler,
	).WithContext("available", available)
}

// NewUnknownImputerError reports an unregistered imputer name and lists
// the available ones.
func NewUnknownImputerError(name string, available []string) *AppError {
	return NewAppError(ErrTypeUnknownName,
		fmt.Sprintf("imputer %q is not available, use one of: %s", name, strings.Join(available, ", ")),
		ErrUnknownImputer,
	).WithContext("available", available)
}

// NewOrientationError reports an orientation outside wide/long or an
// unsupported combination of options.
func NewOrientationError(message string) *AppError {
	return NewAppError(ErrTypeOrientation, message, ErrInvalidOrientation)
}

// NewStateError reports an operation called before the data it needs
// has been computed.
func NewStateError(message string) *AppError {
	return NewAppError(ErrTypeState, message, ErrPipelineState)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// IsType reports whether err wraps an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}
