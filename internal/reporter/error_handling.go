package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"airspace-charge-auditor/internal/reconciler"
	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with input validation, logging
// and fallbacks for text formats and unwritable output files.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		var format interface{}
		if config != nil {
			format = config.Format
		}
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"output-format",
			format,
			err,
		).WithSuggestion("Use one of: console, json, csv, xlsx")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely generates a report, falling back to the console format
// when a text export fails.
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.AuditResult, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	if err := srg.generateWithFallback(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		return err
	}

	srg.logger.WithField("audit_id", result.AuditID).Debug("Report generation completed")
	return nil
}

// WriteReportFile writes the report to path. When path cannot be created the
// report goes to a backup file in the temporary directory, whose path is returned.
func (srg *SafeReportGenerator) WriteReportFile(result *reconciler.AuditResult, path string) (string, error) {
	if err := srg.validateInputs(result, io.Discard); err != nil {
		return "", err
	}

	file, err := os.Create(path)
	if err != nil {
		if !srg.isFileError(err) {
			return "", errors.FileError(errors.CodeFilePermission, path, err)
		}
		return srg.generateWithOutputFallback(result, path, err)
	}

	if err := srg.GenerateReportSafely(result, file); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", errors.FileError(errors.CodeFilePermission, path, err)
	}

	srg.logger.WithFields(logger.Fields{
		"file":     path,
		"format":   srg.config.Format,
		"audit_id": result.AuditID,
	}).Info("Report written")

	return path, nil
}

// validateInputs validates the inputs for report generation
func (srg *SafeReportGenerator) validateInputs(result *reconciler.AuditResult, writer io.Writer) error {
	if result == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"result",
			nil,
			nil,
		).WithSuggestion("Provide a completed audit result")
	}

	if result.Summary == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"summary",
			nil,
			nil,
		).WithSuggestion("Ensure the audit result includes a summary")
	}

	if writer == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"writer",
			nil,
			nil,
		).WithSuggestion("Provide a valid output writer")
	}

	return nil
}

// generateWithFallback attempts to generate the report with fallback strategies
func (srg *SafeReportGenerator) generateWithFallback(result *reconciler.AuditResult, writer io.Writer) error {
	err := srg.GenerateReport(result, writer)
	if err == nil {
		return nil
	}

	if srg.shouldAttemptFormatFallback() {
		srg.logger.WithError(err).Warn("Primary report generation failed, attempting fallback")
		return srg.generateWithFormatFallback(result, writer, err)
	}

	return srg.wrapGenerationError(err)
}

// shouldAttemptFormatFallback reports whether the console format can stand in.
// A half-written workbook cannot be followed by text.
func (srg *SafeReportGenerator) shouldAttemptFormatFallback() bool {
	return srg.config.Format != FormatConsole && !srg.config.Format.IsBinary()
}

// generateWithFormatFallback attempts to generate with a fallback format
func (srg *SafeReportGenerator) generateWithFormatFallback(result *reconciler.AuditResult, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallbackConfig.UseColors = false

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")

	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return srg.wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: Report generated in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", originalErr)

	if err := fallbackGenerator.GenerateReport(result, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}

	return nil
}

// generateWithOutputFallback writes the report to a backup location
func (srg *SafeReportGenerator) generateWithOutputFallback(result *reconciler.AuditResult, originalPath string, originalErr error) (string, error) {
	backupPath := srg.generateBackupPath(originalPath)

	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Warn("Attempting output fallback")

	backupFile, err := os.Create(backupPath)
	if err != nil {
		return "", errors.FileError(errors.CodeFilePermission, originalPath, originalErr).
			WithSuggestion("Check that the output directory exists and is writable")
	}
	defer backupFile.Close()

	if err := srg.GenerateReportSafely(result, backupFile); err != nil {
		return "", errors.InternalError(
			errors.CodeUnexpectedError,
			"report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err),
		)
	}

	fmt.Fprintf(os.Stderr, "Warning: Could not write to %s, report saved to %s\n", originalPath, backupPath)

	return backupPath, nil
}

// isFileError checks if the error is file-related
func (srg *SafeReportGenerator) isFileError(err error) bool {
	return os.IsPermission(err) ||
		os.IsNotExist(err) ||
		os.IsExist(err) ||
		isSpaceError(err)
}

// generateBackupPath names the backup file after the original
func (srg *SafeReportGenerator) generateBackupPath(originalPath string) string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(os.TempDir(), fmt.Sprintf("%s_backup%s", name, ext))
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if auditErr, ok := errors.AsAuditError(err); ok {
		return auditErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

// Utility functions

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
