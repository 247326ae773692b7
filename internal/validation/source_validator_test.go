package validation

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/shared/testutil"
)

func TestSourceValidator_ValidateSource(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.csv"), 0o755))

	tests := []struct {
		name     string
		path     string
		wantType apperrors.ErrorType
	}{
		{name: "csv", path: write("hunger.csv", "iso_code,value\nKEN,1\n")},
		{name: "upper case xlsx", path: write("reserves.XLSX", "PK")},
		{name: "unsupported extension", path: write("hunger.json", "{}"), wantType: apperrors.ErrTypeValidation},
		{name: "lock file", path: write("~$reserves.xlsx", "x"), wantType: apperrors.ErrTypeValidation},
		{name: "missing", path: filepath.Join(dir, "absent.csv"), wantType: apperrors.ErrTypeNotFound},
		{name: "directory", path: filepath.Join(dir, "folder.csv"), wantType: apperrors.ErrTypeValidation},
		{name: "empty", path: write("empty.csv", ""), wantType: apperrors.ErrTypeValidation},
	}

	v := NewSourceValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateSource(tt.path)
			if tt.wantType == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tt.wantType), "got %v", err)
		})
	}
}

func TestSourceValidator_ValidateDataDir(t *testing.T) {
	v := NewSourceValidator(nil)
	dir := t.TempDir()
	file := filepath.Join(dir, "file.csv")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.NoError(t, v.ValidateDataDir(dir))
	assert.True(t, apperrors.IsType(v.ValidateDataDir(filepath.Join(dir, "nope")), apperrors.ErrTypeNotFound))
	assert.True(t, apperrors.IsType(v.ValidateDataDir(file), apperrors.ErrTypeValidation))
}

func TestSourceValidator_ValidateSources(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	v := NewSourceValidator(logger)
	dir := t.TempDir()
	good := filepath.Join(dir, "hunger.csv")
	require.NoError(t, os.WriteFile(good, []byte("iso_code,value\n"), 0o644))

	assert.NoError(t, v.ValidateSources([]string{"hunger"}, []string{good}))

	err := v.ValidateSources(
		[]string{"hunger", "reserves", "inflation"},
		[]string{good, filepath.Join(dir, "reserves.csv"), filepath.Join(dir, "inflation.txt")},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indicator reserves")
	assert.Contains(t, err.Error(), "indicator inflation")
	assert.NotContains(t, err.Error(), "indicator hunger")
	assert.Len(t, handler.GetRecordsByLevel(slog.LevelError), 2)
}
