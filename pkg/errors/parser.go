package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// MissingColumnError creates the structural error raised when a schedule export
// lacks required columns. It is never recoverable: no row of the file can be joined.
func MissingColumnError(file string, expectedColumns []string, actualColumns []string) *AuditError {
	missing := FindMissingColumns(expectedColumns, actualColumns)

	err := ParseError(CodeMissingColumn, filepath.Base(file), 1, strings.Join(missing, ", "), nil).
		WithSuggestion(fmt.Sprintf("add the missing columns to the export header (found: %s)", strings.Join(actualColumns, ", ")))
	err.Message = fmt.Sprintf("missing required columns in %s: %s", filepath.Base(file), strings.Join(missing, ", "))

	return err.WithContext("missing_columns", missing)
}

// NoRecordsError signals that no flight charge line could be extracted from any uploaded file
func NoRecordsError(files []string, linesRead int) *AuditError {
	return ValidationError(CodeNoRecords, "charge_files", strings.Join(files, ", "), nil).
		WithContext("lines_read", linesRead)
}

// UnsupportedFormatError creates an error for schedule files with an unknown extension
func UnsupportedFormatError(file string) *AuditError {
	return ParseError(CodeUnsupportedFormat, filepath.Base(file), 0, "", nil).
		WithContext("extension", strings.ToLower(filepath.Ext(file)))
}

// FindMissingColumns returns the expected columns absent from actual, compared case-insensitively
func FindMissingColumns(expected, actual []string) []string {
	actualSet := make(map[string]bool)
	for _, col := range actual {
		actualSet[strings.ToLower(strings.TrimSpace(col))] = true
	}

	var missing []string
	for _, col := range expected {
		if !actualSet[strings.ToLower(strings.TrimSpace(col))] {
			missing = append(missing, col)
		}
	}

	return missing
}
