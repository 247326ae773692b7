package testutil

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

// LogRecord is one captured log call with its attributes flattened,
// including those bound with Logger.With.
type LogRecord struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

func (r LogRecord) has(attrs map[string]any) bool {
	for k, v := range attrs {
		if r.Attrs[k] != v {
			return false
		}
	}
	return true
}

type journal struct {
	mu      sync.Mutex
	records []LogRecord
}

// BufferedSlogHandler keeps every record it handles, at every level, and
// echoes them to t.Log. Handlers derived with WithAttrs write to the same
// journal.
type BufferedSlogHandler struct {
	journal *journal
	bound   []slog.Attr
	t       *testing.T
}

// NewBufferedSlogHandler returns an empty handler. t may be nil.
func NewBufferedSlogHandler(t *testing.T) *BufferedSlogHandler {
	return &BufferedSlogHandler{journal: &journal{}, t: t}
}

// NewTestLogger returns a logger and the handler capturing its output.
func NewTestLogger(t *testing.T) (*slog.Logger, *BufferedSlogHandler) {
	h := NewBufferedSlogHandler(t)
	return slog.New(h), h
}

func (h *BufferedSlogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *BufferedSlogHandler) Handle(_ context.Context, r slog.Record) error {
	rec := LogRecord{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   make(map[string]any, len(h.bound)+r.NumAttrs()),
	}
	for _, a := range h.bound {
		rec.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.Any()
		return true
	})

	h.journal.mu.Lock()
	h.journal.records = append(h.journal.records, rec)
	h.journal.mu.Unlock()

	if h.t != nil {
		h.t.Logf("%s %s %v", r.Level, r.Message, rec.Attrs)
	}
	return nil
}

func (h *BufferedSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferedSlogHandler{
		journal: h.journal,
		bound:   append(slices.Clip(h.bound), attrs...),
		t:       h.t,
	}
}

// WithGroup ignores the group; keys stay flat.
func (h *BufferedSlogHandler) WithGroup(string) slog.Handler { return h }

// GetRecords returns a snapshot of the captured records.
func (h *BufferedSlogHandler) GetRecords() []LogRecord {
	h.journal.mu.Lock()
	defer h.journal.mu.Unlock()
	return slices.Clone(h.journal.records)
}

// Count is len(GetRecords()).
func (h *BufferedSlogHandler) Count() int {
	h.journal.mu.Lock()
	defer h.journal.mu.Unlock()
	return len(h.journal.records)
}

func (h *BufferedSlogHandler) filter(keep func(LogRecord) bool) []LogRecord {
	var out []LogRecord
	for _, r := range h.GetRecords() {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// GetRecordsByLevel returns the records logged at exactly level.
func (h *BufferedSlogHandler) GetRecordsByLevel(level slog.Level) []LogRecord {
	return h.filter(func(r LogRecord) bool { return r.Level == level })
}

// Warnings returns the WARN records whose message contains substr.
func (h *BufferedSlogHandler) Warnings(substr string) []LogRecord {
	return h.filter(func(r LogRecord) bool {
		return r.Level == slog.LevelWarn && strings.Contains(r.Message, substr)
	})
}

// ContainsAttr reports whether any record carries key with value.
func (h *BufferedSlogHandler) ContainsAttr(key string, value any) bool {
	return len(h.filter(func(r LogRecord) bool { return r.has(map[string]any{key: value}) })) > 0
}

// AssertWarned fails t unless some WARN record contains message and
// carries every attribute in attrs.
func AssertWarned(t *testing.T, h *BufferedSlogHandler, message string, attrs map[string]any) {
	t.Helper()
	if slices.ContainsFunc(h.Warnings(message), func(r LogRecord) bool { return r.has(attrs) }) {
		return
	}
	t.Errorf("no warning %q with %v among:", message, attrs)
	for _, r := range h.GetRecords() {
		t.Logf("  %s %s %v", r.Level, r.Message, r.Attrs)
	}
}
