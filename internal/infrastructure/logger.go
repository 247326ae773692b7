package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ONEcampaign/toughest-places-index/internal/config"
)

// sink is the process logger and the file it may be writing to.
var sink struct {
	mu     sync.Mutex
	logger *slog.Logger
	file   *os.File
}

// InitializeLogger builds the process logger from cfg and installs it as
// the slog default. Later calls return the logger already installed.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.logger != nil {
		return sink.logger, nil
	}

	w, file, err := logWriter(cfg)
	if err != nil {
		return nil, err
	}
	sink.file = file
	sink.logger = NewLogger(cfg, w)
	slog.SetDefault(sink.logger)
	return sink.logger, nil
}

// GetLogger returns the process logger, or slog's default before
// InitializeLogger has run.
func GetLogger() *slog.Logger {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.logger == nil {
		return slog.Default()
	}
	return sink.logger
}

// NewLogger writes JSON records, or logfmt when cfg.Format is "text", at
// cfg.Level. Records logged with a context carry its trace id.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: logLevel(cfg.Level)}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(correlated{h})
}

// logWriter resolves cfg.Output: "console" (the default), "file" or "both".
func logWriter(cfg config.LoggingConfig) (io.Writer, *os.File, error) {
	mode := strings.ToLower(cfg.Output)
	if mode != "file" && mode != "both" {
		return os.Stdout, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.FilePath, err)
	}
	if mode == "file" {
		return f, f, nil
	}
	return io.MultiWriter(os.Stdout, f), f, nil
}

// logLevel accepts slog's level names plus "warning". Anything else logs
// at info.
func logLevel(name string) slog.Level {
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// correlated stamps trace_id on records: the run's id when the context
// carries one, otherwise the active span's.
type correlated struct {
	slog.Handler
}

func (h correlated) Handle(ctx context.Context, r slog.Record) error {
	id := GetTraceID(ctx)
	if id == "" {
		id = TraceIDFromContext(ctx)
	}
	if id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h correlated) WithAttrs(attrs []slog.Attr) slog.Handler {
	return correlated{h.Handler.WithAttrs(attrs)}
}

func (h correlated) WithGroup(name string) slog.Handler {
	return correlated{h.Handler.WithGroup(name)}
}

// CloseLogFile closes the log file opened by InitializeLogger, if any.
func CloseLogFile() error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.file == nil {
		return nil
	}
	err := sink.file.Close()
	sink.file = nil
	return err
}

// ResetLoggerForTesting forgets the process logger so tests can install
// their own.
func ResetLoggerForTesting() {
	_ = CloseLogFile()
	sink.mu.Lock()
	sink.logger = nil
	sink.mu.Unlock()
}
