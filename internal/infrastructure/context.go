package infrastructure

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type traceKey struct{}

// GenerateTraceID returns a random UUID.
func GenerateTraceID() string {
	return uuid.NewString()
}

// WithTraceID tags ctx with a trace id that every log record made with
// it will carry.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// GetTraceID returns the id set by WithTraceID, or "".
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// EnsureTraceID tags ctx with a fresh id unless it already has one.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return WithTraceID(ctx, GenerateTraceID())
}

// LoggerWithContext binds the trace id of ctx to the process logger, for
// code that logs without passing ctx along.
func LoggerWithContext(ctx context.Context) *slog.Logger {
	l := GetLogger()
	if id := GetTraceID(ctx); id != "" {
		return l.With("trace_id", id)
	}
	return l
}

// WithComponent tags l, or the process logger when l is nil.
func WithComponent(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = GetLogger()
	}
	return l.With("component", component)
}
