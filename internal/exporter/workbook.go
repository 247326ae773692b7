package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/index"
)

// Workbook sheet names.
const (
	SheetScores     = "scores"
	SheetIndicators = "indicators"
	SheetStability  = "stability"
)

// WriteWorkbook writes the detailed results workbook: ranked scores, the
// indicator table and, when present, the stability report.
func WriteWorkbook(path string, r Results, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	scoreRows, err := r.scoreRows()
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetScores); err != nil {
		return fmt.Errorf("naming scores sheet: %w", err)
	}
	scores := r.Scores.Round(r.precision())
	for i, row := range scoreRows {
		// score as a number so it sorts in Excel
		if err := writeRow(f, SheetScores, i+2, []any{i + 1, row[1], row[2], cellValue(scores.Value(row[1], index.ScoreColumn))}); err != nil {
			return err
		}
	}
	if err := writeHeader(f, SheetScores, scoreHeaders); err != nil {
		return err
	}

	if r.Indicators != nil {
		if err := writeFrame(f, SheetIndicators, r.Indicators, r); err != nil {
			return err
		}
	}

	if r.Stability != nil {
		if _, err := f.NewSheet(SheetStability); err != nil {
			return err
		}
		if err := writeHeader(f, SheetStability, stabilityHeaders); err != nil {
			return err
		}
		for i, s := range r.Stability.Shifts {
			row := []any{s.ISOCode, s.Withheld, s.BaselineRank, s.PerturbedRank, s.Shift,
				cellValue(s.BaselineScore), cellValue(s.PerturbedScore), cellValue(s.ScoreChangePct)}
			if err := writeRow(f, SheetStability, i+2, row); err != nil {
				return err
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	logger.Info("Wrote results workbook",
		slog.String("path", path),
		slog.Int("countries", r.Scores.Len()),
		slog.Bool("stability", r.Stability != nil))
	return nil
}

func writeFrame(f *excelize.File, sheet string, data *frame.Frame, r Results) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	headers := append([]string{"iso_code", "country"}, data.Columns()...)
	if err := writeHeader(f, sheet, headers); err != nil {
		return err
	}
	for i, code := range data.Index() {
		row := []any{code, r.name(code)}
		for _, v := range data.Row(code) {
			row = append(row, cellValue(v))
		}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return writeRow(f, sheet, 1, row)
}

func writeRow(f *excelize.File, sheet string, rowIdx int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowIdx)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, rowIdx, err)
	}
	return nil
}
