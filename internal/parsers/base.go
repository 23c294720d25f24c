// Package parsers turns billing charge files and flight schedule exports into
// typed records.
//
// Charge files are semi-structured text: each flight detail line carries its
// fields at fixed offsets, with regex searches over wider zones to tolerate
// layout drift between providers. Schedule exports are tabular (CSV or Excel)
// and are validated at load time so a missing column fails the run up front.
//
// Parser types:
//   - LineParser: one charge line to one ChargeRecord, pure
//   - ChargeFileParser: a whole charge file, attaching per-file provenance
//   - ScheduleParser: a schedule export to ScheduleRecords
//
// Example usage:
//
//	charges, err := parsers.NewChargeFileParser(nil)
//	records, stats, err := charges.ParseFile("A2401.txt")
//
//	schedule, err := parsers.NewScheduleParser(nil)
//	rows, scheduleStats, err := schedule.ParseFile("leon.xlsx")
package parsers

import (
	"os"
	"strings"
	"unicode/utf8"

	"airspace-charge-auditor/pkg/errors"
)

// readFile loads a file, mapping OS errors onto file errors
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return data, nil
}

// decodeLossy returns content as text with undecodable bytes dropped
func decodeLossy(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	return strings.ToValidUTF8(string(content), "")
}

// splitLines splits on \n, \r\n and \r without producing a trailing empty line
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// NormalizeHeader cuts a column name at its bracketed suffix and trims it,
// so "Aircraft [reg]" becomes "Aircraft".
func NormalizeHeader(header string) string {
	header = strings.TrimPrefix(header, "\ufeff")
	if i := strings.Index(header, "["); i >= 0 {
		header = header[:i]
	}
	return strings.TrimSpace(header)
}

// HeaderMap resolves column names to indexes
type HeaderMap struct {
	Headers []string
	index   map[string]int
}

// NewHeaderMap normalizes headers and indexes them. The first occurrence of a
// duplicated name wins.
func NewHeaderMap(headers []string) *HeaderMap {
	hm := &HeaderMap{
		Headers: make([]string, len(headers)),
		index:   make(map[string]int, len(headers)),
	}
	for i, header := range headers {
		name := NormalizeHeader(header)
		hm.Headers[i] = name
		key := strings.ToLower(name)
		if _, exists := hm.index[key]; !exists {
			hm.index[key] = i
		}
	}
	return hm
}

// GetColumnIndex returns the index of a column by name (case-insensitive), or -1
func (hm *HeaderMap) GetColumnIndex(name string) int {
	if index, exists := hm.index[strings.ToLower(strings.TrimSpace(name))]; exists {
		return index
	}
	return -1
}

// Value returns the trimmed cell for column, or "" when absent from the row
func (hm *HeaderMap) Value(record []string, column string) string {
	index := hm.GetColumnIndex(column)
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
