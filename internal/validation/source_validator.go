// Package validation checks the input files of a run before any of them
// is parsed, so one run reports every unusable source at once.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
)

// SourceExtensions lists the readable indicator formats.
var SourceExtensions = []string{".csv", ".xlsx", ".xlsm"}

// SourceValidator validates data directories and indicator files.
type SourceValidator struct {
	logger *slog.Logger
}

// NewSourceValidator creates a new source validator
func NewSourceValidator(logger *slog.Logger) *SourceValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceValidator{logger: logger}
}

// ValidateDataDir checks that dir exists and is a directory.
func (v *SourceValidator) ValidateDataDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		v.logger.Error("Data directory does not exist", slog.String("directory", dir))
		return apperrors.NewNotFoundError("data directory " + dir)
	}
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to stat directory %s", dir), err)
	}
	if !info.IsDir() {
		return apperrors.NewAppValidationError(fmt.Sprintf("%s is not a directory", dir))
	}
	return nil
}

// ValidateSource checks that path is a readable, non-empty indicator file
// in a supported format.
func (v *SourceValidator) ValidateSource(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(SourceExtensions, ext) {
		return apperrors.NewAppValidationError(
			fmt.Sprintf("file %s has unsupported extension %q, want one of %s", path, ext, strings.Join(SourceExtensions, ", ")))
	}
	// office lock files share the workbook's extension
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return apperrors.NewAppValidationError(fmt.Sprintf("file %s is a temporary Excel file", path))
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return apperrors.NewNotFoundError("source file " + path)
	}
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to stat file %s", path), err)
	}
	if info.IsDir() {
		return apperrors.NewAppValidationError(fmt.Sprintf("%s is a directory, not a file", path))
	}
	if info.Size() == 0 {
		return apperrors.NewAppValidationError(fmt.Sprintf("file %s is empty", path))
	}

	f, err := os.Open(path)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("file %s is not readable", path), err)
	}
	f.Close()

	v.logger.Debug("Source validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateSources validates every named source and joins the failures,
// each prefixed with its name. Names are reported in the order given.
func (v *SourceValidator) ValidateSources(names, paths []string) error {
	var errs []error
	for i, path := range paths {
		if err := v.ValidateSource(path); err != nil {
			v.logger.Error("Unusable indicator source",
				slog.String("indicator", names[i]),
				slog.String("file", path),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("indicator %s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}
