// Package reporter renders audit results for people and for other programs.
//
// Supported output formats:
//   - Console: summary metrics, per-method breakdown and a record table
//   - JSON: the audit result as served by the HTTP endpoint
//   - CSV: the main view, optionally followed by the unmatched investigation view
//   - XLSX: a workbook with "Main Report" and "Unmatched Investigation" sheets
//
// Every tabular export uses the same column order:
//
//	Invoice No, Date, Reg, Dep, Arr, Amount, Trip Number, Match Status, Match Method
//
// The unmatched view appends the raw charge line for investigation.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatXLSX})
//	err = generator.GenerateReport(result, file)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"airspace-charge-auditor/internal/models"
	"airspace-charge-auditor/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// IsBinary reports whether the format cannot be printed to a terminal
func (f OutputFormat) IsBinary() bool {
	return f == FormatXLSX
}

// ContentType returns the MIME type used when the report is downloaded
func (f OutputFormat) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Extension returns the file extension for the format, without the dot
func (f OutputFormat) Extension() string {
	if f == FormatConsole {
		return "txt"
	}
	return string(f)
}

// Column headers shared by every tabular export
var (
	MainColumns      = []string{"Invoice No", "Date", "Reg", "Dep", "Arr", "Amount", "Trip Number", "Match Status", "Match Method"}
	UnmatchedColumns = append(append([]string{}, MainColumns...), "Raw Line")
)

// ANSI sequences for status colouring on terminals
const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorBold  = "\033[1m"
)

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Output format
	Format OutputFormat `json:"format"`

	// Detail level options
	IncludeRecords   bool `json:"include_records"`
	IncludeUnmatched bool `json:"include_unmatched"`
	IncludeStats     bool `json:"include_stats"`

	// Console formatting options
	UseColors      bool `json:"use_colors"`
	MaxConsoleRows int  `json:"max_console_rows"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:           FormatConsole,
		IncludeRecords:   true,
		IncludeUnmatched: true,
		IncludeStats:     true,
		UseColors:        true,
		MaxConsoleRows:   50,
		CSVDelimiter:     ',',
		CSVHeaders:       true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxConsoleRows < 0 {
		return fmt.Errorf("max console rows cannot be negative, got %d", c.MaxConsoleRows)
	}

	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates audit reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport generates a report from an audit result and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.AuditResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("audit result cannot be nil")
	}
	if result.Summary == nil {
		return fmt.Errorf("audit result has no summary")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.AuditResult, out io.Writer) error {
	writer := &errWriter{w: out}

	fmt.Fprintf(writer, "AIRSPACE CHARGE AUDIT\n")
	fmt.Fprintf(writer, "Audit ID:  %s\n", result.AuditID)
	fmt.Fprintf(writer, "Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration:  %v\n\n", result.Duration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(result, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== MATCH METHODS ===\n")
	rg.printMethodBreakdown(result, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeRecords && len(result.Records) > 0 {
		fmt.Fprintf(writer, "=== CHARGES ===\n")
		rg.printRecordTable(result.Records, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatched && len(result.Unmatched) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED INVESTIGATION ===\n")
		rg.printUnmatched(result.Unmatched, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeStats && result.Stats != nil {
		fmt.Fprintf(writer, "=== PROCESSING STATISTICS ===\n")
		rg.printProcessingStats(result.Stats, writer)
	}

	return writer.err
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.AuditResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.filterResultForOutput(result))
}

// generateCSVReport writes the main view, then the unmatched view after a blank line
func (rg *ReportGenerator) generateCSVReport(result *reconciler.AuditResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(MainColumns); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, record := range result.Records {
		if err := csvWriter.Write(exportRow(record)); err != nil {
			return fmt.Errorf("failed to write charge record: %w", err)
		}
	}

	if rg.config.IncludeUnmatched && len(result.Unmatched) > 0 {
		// csv.Writer rejects empty records, so the separator goes straight to the stream
		csvWriter.Flush()
		if _, err := io.WriteString(writer, "\n"); err != nil {
			return fmt.Errorf("failed to write CSV section break: %w", err)
		}

		if rg.config.CSVHeaders {
			if err := csvWriter.Write(UnmatchedColumns); err != nil {
				return fmt.Errorf("failed to write CSV headers: %w", err)
			}
		}
		for _, record := range result.Unmatched {
			if err := csvWriter.Write(unmatchedRow(record)); err != nil {
				return fmt.Errorf("failed to write unmatched record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummary(result *reconciler.AuditResult, writer io.Writer) {
	summary := result.Summary
	fmt.Fprintf(writer, "Charges:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", summary.TotalRecords)
	fmt.Fprintf(writer, "  Matched:   %s\n",
		rg.colorize(fmt.Sprintf("%d (%.1f%%)", summary.MatchedRecords, summary.MatchRatePercent()), colorGreen))
	fmt.Fprintf(writer, "  Unmatched: %s\n",
		rg.colorize(fmt.Sprintf("%d (%.1f%%)", summary.UnmatchedRecords,
			calculatePercentage(summary.UnmatchedRecords, summary.TotalRecords)), colorRed))

	fmt.Fprintf(writer, "\nAmounts:\n")
	fmt.Fprintf(writer, "  Total:     %s\n", summary.TotalAmount.StringFixed(2))
	fmt.Fprintf(writer, "  Matched:   %s\n", summary.MatchedAmount.StringFixed(2))
	fmt.Fprintf(writer, "  Unmatched: %s\n", summary.UnmatchedAmount.StringFixed(2))
}

func (rg *ReportGenerator) printMethodBreakdown(result *reconciler.AuditResult, writer io.Writer) {
	summary := result.Summary
	fmt.Fprintf(writer, "Registration:  %d (%.1f%%)\n",
		summary.MatchedByRegistration, calculatePercentage(summary.MatchedByRegistration, summary.TotalRecords))
	fmt.Fprintf(writer, "Flight number: %d (%.1f%%)\n",
		summary.MatchedByFlightNumber, calculatePercentage(summary.MatchedByFlightNumber, summary.TotalRecords))
	fmt.Fprintf(writer, "None:          %d (%.1f%%)\n",
		summary.UnmatchedRecords, calculatePercentage(summary.UnmatchedRecords, summary.TotalRecords))

	if summary.DuplicateScheduleKeys > 0 {
		fmt.Fprintf(writer, "\nSchedule rows indexed: %d, duplicate join keys: %d\n",
			summary.IndexedScheduleRows, summary.DuplicateScheduleKeys)
	}
}

func (rg *ReportGenerator) printRecordTable(records []*models.AuditRecord, writer io.Writer) {
	format := "%-14s %-10s %-8s %-4s %-4s %10s %-12s %-9s %s\n"
	fmt.Fprintf(writer, format, "Invoice No", "Date", "Reg", "Dep", "Arr", "Amount", "Trip Number", "Status", "Method")

	for i, record := range records {
		if rg.config.MaxConsoleRows > 0 && i >= rg.config.MaxConsoleRows {
			fmt.Fprintf(writer, "... and %d more\n", len(records)-i)
			break
		}

		row := exportRow(record)
		status := fmt.Sprintf("%-9s", row[7])
		if record.Match.IsMatched() {
			status = rg.colorize(status, colorGreen)
		} else {
			status = rg.colorize(status, colorRed)
		}
		fmt.Fprintf(writer, format, row[0], row[1], row[2], row[3], row[4], row[5], row[6], status, row[8])
	}
}

func (rg *ReportGenerator) printUnmatched(records []*models.AuditRecord, writer io.Writer) {
	fmt.Fprintf(writer, "Total Unmatched Charges: %d\n\n", len(records))

	for i, record := range records {
		if rg.config.MaxConsoleRows > 0 && i >= rg.config.MaxConsoleRows {
			fmt.Fprintf(writer, "... and %d more\n", len(records)-i)
			break
		}

		charge := record.Charge
		fmt.Fprintf(writer, "%d. %s %s %s %s-%s %s\n",
			i+1, charge.InvoiceRef, charge.FlightDate, charge.Registration,
			charge.DepartureICAO, charge.ArrivalICAO, charge.Amount.StringFixed(2))
		fmt.Fprintf(writer, "   %s\n", strings.TrimRight(charge.RawLine, " "))
	}
}

func (rg *ReportGenerator) printProcessingStats(stats *reconciler.ProcessingStats, writer io.Writer) {
	fmt.Fprintf(writer, "Schedule File:        %s\n", stats.ScheduleFile)
	fmt.Fprintf(writer, "Charge Files:         %s\n", strings.Join(stats.ChargeFiles, ", "))
	if stats.Charges != nil {
		fmt.Fprintf(writer, "Charge Lines:         %s\n", stats.Charges)
	}
	if stats.Schedule != nil {
		fmt.Fprintf(writer, "Schedule Rows:        %s\n", stats.Schedule)
	}
	fmt.Fprintf(writer, "Indexed Rows:         %d\n", stats.Index.IndexedRows)
	fmt.Fprintf(writer, "Parsing Time:         %v\n", stats.ParsingTime)
	fmt.Fprintf(writer, "Matching Time:        %v\n", stats.MatchingTime)
	fmt.Fprintf(writer, "Total Processing:     %v\n", stats.TotalTime)
}

func (rg *ReportGenerator) colorize(text, color string) string {
	if !rg.config.UseColors {
		return text
	}
	return colorBold + color + text + colorReset
}

// Helper methods

// errWriter remembers the first write error so the print helpers stay unchecked
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	if err != nil {
		ew.err = fmt.Errorf("failed to write console report: %w", err)
	}
	return n, err
}

func calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.AuditResult) map[string]interface{} {
	output := map[string]interface{}{
		"audit_id":     result.AuditID,
		"processed_at": result.ProcessedAt,
		"stats":        result.Summary,
	}

	if rg.config.IncludeRecords {
		output["data"] = nonNil(result.Records)
	}

	if rg.config.IncludeUnmatched {
		output["unmatched"] = nonNil(result.Unmatched)
	}

	if rg.config.IncludeStats && result.Stats != nil {
		output["processing"] = result.Stats
	}

	return output
}

func nonNil(records []*models.AuditRecord) []*models.AuditRecord {
	if records == nil {
		return []*models.AuditRecord{}
	}
	return records
}

// exportRow renders a record in MainColumns order
func exportRow(record *models.AuditRecord) []string {
	charge := record.Charge
	status, method := models.StatusUnmatched, models.MethodNone
	tripID := ""
	if record.Match != nil {
		status, method, tripID = record.Match.Status, record.Match.Method, record.Match.TripID
	}

	return []string{
		charge.InvoiceRef,
		charge.FlightDate,
		charge.Registration,
		charge.DepartureICAO,
		charge.ArrivalICAO,
		charge.Amount.StringFixed(2),
		tripID,
		string(status),
		method.String(),
	}
}

// unmatchedRow renders a record in UnmatchedColumns order
func unmatchedRow(record *models.AuditRecord) []string {
	return append(exportRow(record), strings.TrimRight(record.Charge.RawLine, " "))
}

// ExportFileName names a downloadable report after its audit run
func ExportFileName(result *reconciler.AuditResult, format OutputFormat) string {
	id := result.AuditID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("airspace_audit_%s_%s.%s", result.ProcessedAt.Format("20060102"), id, format.Extension())
}
