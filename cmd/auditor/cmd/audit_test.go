package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const testSchedule = "Date ADEP,Aircraft [reg],Flight number,ADEP ICAO,ADES ICAO,Trip number [id]\n" +
	"15/01/2024,4X-ABC,LY001,LFPG,EGLL,T1001\n" +
	"15/01/2024,4X-ZZZ,SN1234,LFPG,EGLL,T2002\n"

func testChargeLine(date, callsign, route, tail string) string {
	pad := func(s string, width int) string {
		return s + strings.Repeat(" ", width-len(s))
	}
	return "1234567" + "01" + date + strings.Repeat(" ", 6) + pad(callsign, 10) + pad("   "+route, 20) + tail
}

// writeAuditFixtures writes a schedule and one charge file with three flight lines
func writeAuditFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	scheduleFile := filepath.Join(dir, "leon.csv")
	if err := os.WriteFile(scheduleFile, []byte(testSchedule), 0644); err != nil {
		t.Fatalf("failed to create schedule file: %v", err)
	}

	charges := strings.Join([]string{
		"INVOICE 12/3456789/24",
		testChargeLine("15/01/2024", "LY001", "LFPGEGLL", " 4X-ABC 150,50"),
		testChargeLine("15/01/2024", "SN1234", "LFPGEGLL", " 100,25"),
		testChargeLine("16/01/2024", "LY009", "LLBGLCLK", " 4X-EDF 49,25"),
	}, "\n")
	chargeFile := filepath.Join(dir, "A2401.txt")
	if err := os.WriteFile(chargeFile, []byte(charges), 0644); err != nil {
		t.Fatalf("failed to create charge file: %v", err)
	}

	return scheduleFile, chargeFile
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.csv")
	if err := os.WriteFile(validFile, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name         string
		filePath     string
		expectError  bool
		expectedCode errors.ErrorCode
	}{
		{"valid file", validFile, false, ""},
		{"empty path", "", true, errors.CodeMissingField},
		{"non-existent file", "/non/existent/file.csv", true, errors.CodeFileNotFound},
		{"directory instead of file", tmpDir, true, errors.CodeInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")

			if !tt.expectError {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !errors.HasCode(err, tt.expectedCode) {
				t.Errorf("expected code %s, got %v", tt.expectedCode, err)
			}
		})
	}
}

func TestValidateAuditFlags(t *testing.T) {
	scheduleFile, chargeFile := writeAuditFixtures(t)
	outputDir := t.TempDir()

	tests := []struct {
		name          string
		setupFlags    func()
		expectError   bool
		errorContains string
		exitCode      int
	}{
		{
			name: "valid flags",
			setupFlags: func() {
				viper.Set("schedule-file", scheduleFile)
				viper.Set("charge-files", []string{chargeFile})
				viper.Set("output-format", "console")
			},
		},
		{
			name: "xlsx with output file",
			setupFlags: func() {
				viper.Set("schedule-file", scheduleFile)
				viper.Set("charge-files", []string{chargeFile})
				viper.Set("output-format", "XLSX")
				viper.Set("output-file", filepath.Join(outputDir, "audit.xlsx"))
			},
		},
		{
			name: "missing schedule file",
			setupFlags: func() {
				viper.Set("charge-files", []string{chargeFile})
			},
			expectError:   true,
			errorContains: "schedule-file",
			exitCode:      3,
		},
		{
			name: "missing charge files",
			setupFlags: func() {
				viper.Set("schedule-file", scheduleFile)
				viper.Set("charge-files", []string{})
			},
			expectError:   true,
			errorContains: "charge-files",
			exitCode:      3,
		},
		{
			name: "charge file does not exist",
			setupFlags: func() {
				viper.Set("schedule-file", scheduleFile)
				viper.Set("charge-files", []string{chargeFile, "/non/existent/AIC.txt"})
				viper.Set("output-format", "console")
			},
			expectError:   true,
			errorContains: "file not found: /non/existent/AIC.txt",
			exitCode:      2,
		},
		{
			name: "invalid output format",
			setupFlags: func() {
				viper.Set("schedule-file", scheduleFile)
				viper.Set("charge-files", []string{chargeFile})
				viper.Set("output-format", "pdf")
			},
			expectError:   true,
			errorContains: "output-format",
			exitCode:      4,
		},
		{
			name: "xlsx without output file",
			setupFlags: func() {
				viper.Set("schedule-file", scheduleFile)
				viper.Set("charge-files", []string{chargeFile})
				viper.Set("output-format", "xlsx")
			},
			expectError:   true,
			errorContains: "output-file",
			exitCode:      4,
		},
		{
			name: "invalid invoice reference",
			setupFlags: func() {
				viper.Set("schedule-file", scheduleFile)
				viper.Set("charge-files", []string{chargeFile})
				viper.Set("output-format", "console")
				viper.Set("invoice-ref", "footer")
			},
			expectError:   true,
			errorContains: "invoice-ref",
			exitCode:      4,
		},
		{
			name: "invalid duplicate policy",
			setupFlags: func() {
				viper.Set("schedule-file", scheduleFile)
				viper.Set("charge-files", []string{chargeFile})
				viper.Set("output-format", "console")
				viper.Set("duplicate-policy", "random")
			},
			expectError:   true,
			errorContains: "duplicate-policy",
			exitCode:      4,
		},
		{
			name: "missing layout file",
			setupFlags: func() {
				viper.Set("schedule-file", scheduleFile)
				viper.Set("charge-files", []string{chargeFile})
				viper.Set("output-format", "console")
				viper.Set("layout-file", filepath.Join(outputDir, "layouts.yaml"))
			},
			expectError:   true,
			errorContains: "layouts.yaml",
			exitCode:      2,
		},
		{
			name: "output directory does not exist",
			setupFlags: func() {
				viper.Set("schedule-file", scheduleFile)
				viper.Set("charge-files", []string{chargeFile})
				viper.Set("output-format", "json")
				viper.Set("output-file", "/non/existent/dir/report.json")
			},
			expectError:   true,
			errorContains: "/non/existent/dir",
			exitCode:      2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			tt.setupFlags()

			err := validateAuditFlags(&cobra.Command{}, []string{})

			if !tt.expectError {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("expected error to contain '%s', got: %v", tt.errorContains, err)
			}

			auditErr, ok := errors.AsAuditError(err)
			if !ok {
				t.Fatalf("expected AuditError, got %T", err)
			}
			if auditErr.GetExitCode() != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, auditErr.GetExitCode())
			}
		})
	}
}

func TestRunAudit_WritesReport(t *testing.T) {
	scheduleFile, chargeFile := writeAuditFixtures(t)
	outputFile := filepath.Join(t.TempDir(), "audit.json")

	viper.Reset()
	defer viper.Reset()
	viper.Set("schedule-file", scheduleFile)
	viper.Set("charge-files", []string{chargeFile})
	viper.Set("output-format", "json")
	viper.Set("output-file", outputFile)

	if err := validateAuditFlags(&cobra.Command{}, nil); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if err := runAudit(&cobra.Command{}, nil); err != nil {
		t.Fatalf("audit failed: %v", err)
	}

	data, err := os.ReadFile(outputFile)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}

	var report struct {
		AuditID string `json:"audit_id"`
		Stats   struct {
			TotalRows   int         `json:"total_rows"`
			MatchedRows int         `json:"matched_rows"`
			TotalAmount json.Number `json:"total_amount"`
		} `json:"stats"`
		Data []struct {
			InvoiceRef string  `json:"invoice_ref"`
			TripID     *string `json:"trip_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}

	if report.AuditID == "" {
		t.Error("expected audit ID in report")
	}
	if report.Stats.TotalRows != 3 {
		t.Errorf("expected 3 rows, got %d", report.Stats.TotalRows)
	}
	if report.Stats.MatchedRows != 2 {
		t.Errorf("expected 2 matched rows, got %d", report.Stats.MatchedRows)
	}
	if report.Stats.TotalAmount.String() != "300.00" {
		t.Errorf("expected total amount 300.00, got %s", report.Stats.TotalAmount)
	}
	if len(report.Data) != 3 {
		t.Fatalf("expected 3 records, got %d", len(report.Data))
	}
	if report.Data[0].InvoiceRef != "12/3456789/24" {
		t.Errorf("expected invoice number from header, got %q", report.Data[0].InvoiceRef)
	}
	if report.Data[2].TripID != nil {
		t.Errorf("expected unmatched record without trip, got %q", *report.Data[2].TripID)
	}
}

func TestRunAudit_NoFlightLines(t *testing.T) {
	scheduleFile, _ := writeAuditFixtures(t)
	emptyCharges := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(emptyCharges, []byte("INVOICE 12/3456789/24\nTOTAL 0,00\n"), 0644); err != nil {
		t.Fatalf("failed to create charge file: %v", err)
	}

	viper.Reset()
	defer viper.Reset()
	viper.Set("schedule-file", scheduleFile)
	viper.Set("charge-files", []string{emptyCharges})
	viper.Set("output-format", "console")

	if err := validateAuditFlags(&cobra.Command{}, nil); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	err := runAudit(&cobra.Command{}, nil)
	if !errors.HasCode(err, errors.CodeNoRecords) {
		t.Fatalf("expected no_records error, got %v", err)
	}

	var out bytes.Buffer
	handler := &CLIErrorHandler{logger: logger.NewNopLogger(), out: &out}
	if code := handler.HandleError(err); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
	if !strings.Contains(out.String(), "No valid flight lines found") {
		t.Errorf("expected message in output, got:\n%s", out.String())
	}
}

func TestAuditCommandHelp(t *testing.T) {
	cmd := auditCmd

	for _, name := range []string{"schedule-file", "charge-files", "output-format", "output-file",
		"invoice-ref", "layout-file", "layout", "duplicate-policy", "progress"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("%s flag not found", name)
		}
	}

	var helpOutput bytes.Buffer
	cmd.SetOut(&helpOutput)
	cmd.Help()

	helpText := helpOutput.String()

	expectedSections := []string{
		"Usage:",
		"Examples:",
		"Flags:",
		"--schedule-file",
		"--charge-files",
		"--output-format",
	}

	for _, section := range expectedSections {
		if !strings.Contains(helpText, section) {
			t.Errorf("help text should contain '%s'", section)
		}
	}
}

func TestSharedParsingFlags(t *testing.T) {
	for _, cmd := range []*cobra.Command{auditCmd, serveCmd} {
		for _, name := range []string{"invoice-ref", "layout-file", "layout", "duplicate-policy", "flight-number-fallback"} {
			t.Run(fmt.Sprintf("%s_%s", cmd.Name(), name), func(t *testing.T) {
				if cmd.Flags().Lookup(name) == nil {
					t.Errorf("flag '%s' not found on %s", name, cmd.Name())
				}
			})
		}
	}
}

func TestVersionString(t *testing.T) {
	defer SetVersionInfo("dev", "unknown", "unknown")

	SetVersionInfo("1.4.0", "abc123", "2024-02-01")
	if rootCmd.Version != "1.4.0" {
		t.Errorf("expected release version, got %s", rootCmd.Version)
	}

	SetVersionInfo("dev", "abc123", "2024-02-01")
	if !strings.Contains(rootCmd.Version, "abc123") {
		t.Errorf("expected commit in dev version, got %s", rootCmd.Version)
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	printer := progressPrinter(&buf)

	printer(logger.ProgressStats{Operation: "parse charge files", Current: 1, Total: 2, Percentage: 50, Duration: time.Second})
	printer(logger.ProgressStats{Operation: "parse charge files", Current: 2, Total: 2, Percentage: 100, Duration: time.Second})

	expected := "  parse charge files: 1/2 (50.0%)\n  parse charge files: 2/2 (100.0%)\n"
	if buf.String() != expected {
		t.Errorf("expected %q, got %q", expected, buf.String())
	}
}
