package exporter

import (
	"math"
	"strconv"
)

// formatFloat formats a value with a fixed number of decimals. Missing
// values are written as empty cells.
func formatFloat(f float64, decimals int) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', decimals, 64)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

// cellValue is the workbook form of a float: nil for missing values so
// the cell stays blank.
func cellValue(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
