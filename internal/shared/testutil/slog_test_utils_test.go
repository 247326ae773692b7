package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSlogHandler(t *testing.T) {
	t.Run("captures records with derived attrs", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.With("component", "imputer").Warn("group has no observed values", "group", "Caribbean")
		logger.Info("done")

		records := handler.GetRecords()
		require.Len(t, records, 2)
		assert.Equal(t, "imputer", records[0].Attrs["component"])
		assert.Equal(t, "Caribbean", records[0].Attrs["group"])
		assert.Equal(t, 2, handler.Count())
	})

	t.Run("filters warnings", func(t *testing.T) {
		logger, handler := NewTestLogger(t)

		logger.Warn("dropped invalid country codes", slog.Int("count", 2))
		logger.Error("dropped invalid country codes")

		assert.Len(t, handler.Warnings("invalid country"), 1)
		assert.True(t, handler.ContainsAttr("count", int64(2)))
		AssertWarned(t, handler, "dropped", map[string]any{"count": int64(2)})
	})
}
