package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ONEcampaign/toughest-places-index/internal/config"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestInitializeLogger(t *testing.T) {
	ResetLoggerForTesting()
	defer ResetLoggerForTesting()

	logFile := filepath.Join(t.TempDir(), "logs", "test.log")
	logger, err := InitializeLogger(config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Same(t, logger, GetLogger())

	logger.Info("test message", "key", "value")
	require.NoError(t, CloseLogFile())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(content, &entry))
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestTraceIDInjection(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	t.Run("from context value", func(t *testing.T) {
		buf.Reset()
		ctx := WithTraceID(context.Background(), "trace-123")
		logger.InfoContext(ctx, "with trace")
		assert.Equal(t, "trace-123", decode(t, &buf)["trace_id"])
	})

	t.Run("from span", func(t *testing.T) {
		buf.Reset()
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		logger.InfoContext(ctx, "with span")
		assert.Equal(t, span.SpanContext().TraceID().String(), decode(t, &buf)["trace_id"])
	})

	t.Run("absent", func(t *testing.T) {
		buf.Reset()
		logger.InfoContext(context.Background(), "plain")
		assert.NotContains(t, decode(t, &buf), "trace_id")
	})
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level   string
		logged  []string
		dropped []string
	}{
		{"debug", []string{"d", "i", "w", "e"}, nil},
		{"info", []string{"i", "w", "e"}, []string{"d"}},
		{"warning", []string{"w", "e"}, []string{"d", "i"}},
		{"error", []string{"e"}, []string{"d", "i", "w"}},
		{"bogus", []string{"i", "w", "e"}, []string{"d"}},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(config.LoggingConfig{Level: tt.level, Format: "text"}, &buf)
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			out := buf.String()
			for _, m := range tt.logged {
				assert.Contains(t, out, "msg="+m+"\n")
			}
			for _, m := range tt.dropped {
				assert.NotContains(t, out, "msg="+m+"\n")
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := EnsureTraceID(context.Background())
	id := GetTraceID(ctx)
	assert.Len(t, id, 36)
	assert.Equal(t, id, GetTraceID(EnsureTraceID(ctx)), "existing id is kept")
	assert.NotEqual(t, GenerateTraceID(), GenerateTraceID())

	ResetLoggerForTesting()
	var buf bytes.Buffer
	sink.logger = NewLogger(config.LoggingConfig{Format: "json"}, &buf)
	defer ResetLoggerForTesting()

	WithComponent(LoggerWithContext(ctx), "api").Info("hello")
	entry := decode(t, &buf)
	assert.Equal(t, "api", entry["component"])
	assert.Equal(t, id, entry["trace_id"])
}
