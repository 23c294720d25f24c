package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"airspace-charge-auditor/cmd/auditor/config"
	"airspace-charge-auditor/internal/matcher"
	"airspace-charge-auditor/internal/parsers"
	"airspace-charge-auditor/internal/reconciler"
	"airspace-charge-auditor/internal/reporter"
	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the audit command
var (
	scheduleFile string
	chargeFiles  []string
	outputFormat string
	outputFile   string
	showProgress bool
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit charge files against the flight schedule",
	Long: `Audit extracts every flight line from the given charge files, joins each one
to the flight schedule by registration or flight number and reports the
matched trips, the total billed amount and the lines left unmatched.

This command requires:
- A flight schedule export (CSV or XLSX)
- One or more charge files (fixed-width text)

Examples:
  # Console report
  auditor audit --schedule-file leon.csv --charge-files A123.txt

  # Several invoices, spreadsheet export
  auditor audit --schedule-file leon.xlsx --charge-files A123.txt,AIC9.txt \
    --output-format xlsx --output-file audit.xlsx

  # Invoice number from the file name, custom layout
  auditor audit --schedule-file leon.csv --charge-files 2024-0117.txt \
    --invoice-ref filename --layout-file layouts.yaml --layout oceanic`,

	PreRunE: validateAuditFlags,
	RunE:    runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	// Required flags
	auditCmd.Flags().StringVarP(&scheduleFile, "schedule-file", "s", "", "path to the flight schedule export, CSV or XLSX (required)")
	auditCmd.Flags().StringSliceVarP(&chargeFiles, "charge-files", "c", []string{}, "comma-separated paths to charge files (required)")

	// Output flags
	auditCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv, xlsx")
	auditCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	auditCmd.Flags().Int("max-console-rows", 50, "maximum charge rows in the console report (0 = all)")
	auditCmd.Flags().Bool("no-color", false, "disable colours in the console report")

	// Parsing flags
	addParsingFlags(auditCmd)
	auditCmd.Flags().String("schedule-delimiter", ",", "schedule CSV delimiter")
	auditCmd.Flags().String("schedule-sheet", "", "schedule workbook sheet (default: first sheet)")
	auditCmd.Flags().Int("max-concurrent-files", 1, "charge files parsed concurrently; 1 parses them in order")

	// UI flags
	auditCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")
}

// addParsingFlags registers the flags shared by every command that runs audits
func addParsingFlags(cmd *cobra.Command) {
	cmd.Flags().String("invoice-ref", parsers.InvoiceRefHeader, "invoice number source: header, filename")
	cmd.Flags().String("layout-file", "", "YAML file with charge line layouts")
	cmd.Flags().String("layout", "", "layout name from the layout file (default: eurocontrol)")
	cmd.Flags().String("duplicate-policy", string(matcher.DuplicateLastWins), "schedule key conflicts: last_wins, first_wins")
	cmd.Flags().Bool("flight-number-fallback", true, "match by flight number when no registration matches")
}

func validateAuditFlags(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "bind_flags", err)
	}

	// Get values from viper (allows override from config file)
	scheduleFile = viper.GetString("schedule-file")
	chargeFiles = viper.GetStringSlice("charge-files")
	outputFormat = strings.ToLower(viper.GetString("output-format"))
	outputFile = viper.GetString("output-file")
	showProgress = viper.GetBool("progress")

	// Validate required flags
	if scheduleFile == "" {
		return errors.ValidationError(errors.CodeMissingField, "schedule-file", nil, nil).
			WithSuggestion("pass the flight schedule export with --schedule-file")
	}
	if len(chargeFiles) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "charge-files", nil, nil).
			WithSuggestion("pass at least one charge file with --charge-files")
	}

	// Validate file existence
	if err := validateFileExists(scheduleFile, "schedule file"); err != nil {
		return err
	}
	for i, chargeFile := range chargeFiles {
		if err := validateFileExists(chargeFile, fmt.Sprintf("charge file %d", i+1)); err != nil {
			return err
		}
	}

	// Validate output format
	format := reporter.OutputFormat(outputFormat)
	if !format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", outputFormat,
			fmt.Errorf("invalid output format '%s'", outputFormat)).
			WithSuggestion("valid formats: console, json, csv, xlsx")
	}
	if format.IsBinary() && outputFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "output-file", nil,
			fmt.Errorf("%s output requires --output-file", format))
	}

	if _, err := parsers.NewInvoiceRefStrategy(viper.GetString("invoice-ref")); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "invoice-ref", viper.GetString("invoice-ref"), err)
	}
	if _, err := matcher.ParseDuplicatePolicy(viper.GetString("duplicate-policy")); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "duplicate-policy", viper.GetString("duplicate-policy"), err)
	}

	if layoutFile := viper.GetString("layout-file"); layoutFile != "" {
		if err := validateFileExists(layoutFile, "layout file"); err != nil {
			return err
		}
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir, err).
					WithSuggestion("create the output directory first")
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithContext("description", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("description", description)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeInvalidFormat, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithContext("description", description)
	}
	file.Close()

	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.WithComponent("cli")
	log.WithFields(logger.Fields{
		"schedule_file": scheduleFile,
		"charge_files":  strings.Join(chargeFiles, ", "),
		"output_format": outputFormat,
		"output_file":   outputFile,
	}).Debug("Starting audit")

	service, err := config.CreateAuditService()
	if err != nil {
		return err
	}
	log.WithField("max_concurrent_files", service.GetConfiguration().MaxConcurrentFiles).Debug("Audit service ready")

	if showProgress {
		fmt.Fprintf(os.Stderr, "Processing %d charge file(s)...\n", len(chargeFiles))
		service.OnProgress(progressPrinter(os.Stderr))
	}

	result, err := service.ProcessAudit(ctx, &reconciler.AuditRequest{
		ScheduleFile: scheduleFile,
		ChargeFiles:  chargeFiles,
	})
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(outputFormat)
	if err != nil {
		return err
	}

	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	if outputFile != "" {
		written, err := generator.WriteReportFile(result, outputFile)
		if err != nil {
			return err
		}
		if written != outputFile {
			fmt.Fprintf(os.Stderr, "Warning: report written to %s instead of %s\n", written, outputFile)
		}
	} else if err := generator.GenerateReportSafely(result, os.Stdout); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		summary := result.Summary
		fmt.Fprintf(os.Stderr, "\nAudit %s completed.\n", result.AuditID)
		fmt.Fprintf(os.Stderr, "Matched %d of %d charges (%.1f%%), total %s.\n",
			summary.MatchedRecords, summary.TotalRecords, summary.MatchRatePercent(), summary.TotalAmount.StringFixed(2))
		fmt.Fprintf(os.Stderr, "Processing time: %v\n", result.Duration)
	}

	return nil
}

// progressPrinter writes one line per parsed charge file
func progressPrinter(w io.Writer) func(logger.ProgressStats) {
	return func(stats logger.ProgressStats) {
		fmt.Fprintf(w, "  %s\n", stats)
	}
}
