// Package exporter writes index results to CSV files and to the detailed
// results workbook.
//
// CSVWriter writes UTF-8 CSV with a BOM so Excel opens it correctly.
// WriteWorkbook produces one sheet per result table: scores, indicators and
// stability.
//
//	w := exporter.NewCSVWriter(paths.OutputDir, logger)
//	if _, err := w.WriteScoresCSV(config.ScoresCSVName, results); err != nil {
//	    return err
//	}
//	if err := exporter.WriteWorkbook(paths.Workbook, results, logger); err != nil {
//	    return err
//	}
package exporter
