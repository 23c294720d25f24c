package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to stderr
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     os.Stderr,
		verbose: viper.GetBool("verbose"),
	}
}

// HandleError prints err and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if auditErr, ok := errors.AsAuditError(err); ok {
		return h.handleAuditError(auditErr)
	}

	return h.handleGenericError(err)
}

// handleAuditError prints message, context, suggestion and category help
func (h *CLIErrorHandler) handleAuditError(err *errors.AuditError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			if err.Context[key] == nil {
				continue
			}
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if path, ok := err.Context["file_path"].(string); ok && err.Code == errors.CodeFileNotFound {
		if similar := similarFiles(path); len(similar) > 0 {
			fmt.Fprintf(h.out, "\nSimilar files found:\n")
			for _, name := range similar {
				fmt.Fprintf(h.out, "  - %s\n", name)
			}
		}
	}

	fmt.Fprintf(h.out, "\n%s\n", getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles errors outside the audit taxonomy, mostly flag parsing
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'auditor --help' for usage.\n")

	return 1
}

// getCategoryHelp returns category-specific help text
func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)
• Ensure you have proper permissions to access the file`

	case errors.CategoryParse:
		return `Parse error help:
• Check the schedule export has the Leon column headers
• Save the schedule as .csv or .xlsx
• Bracketed suffixes such as "Trip number [#]" are accepted`

	case errors.CategoryValidation:
		return `Validation error help:
• Check that the charge files contain flight detail lines
• Verify the charge files match the selected --layout
• Use --invoice-ref filename when the files have no INVOICE header`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Use 'auditor audit --help' to see all available options`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Check that the schedule export covers the billed period
• Try --duplicate-policy first_wins if the schedule repeats flights`

	default:
		return `For more help:
• Use 'auditor --help' for general help
• Use 'auditor audit --help' for command-specific help
• Run with --verbose for the underlying error`
	}
}

// Error detection helpers

func isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full")
}

// similarFiles lists up to three files next to filePath sharing its first characters
func similarFiles(filePath string) []string {
	baseName := filepath.Base(filePath)
	entries, err := os.ReadDir(filepath.Dir(filePath))
	if err != nil {
		return nil
	}

	prefix := strings.ToLower(baseName[:min(len(baseName), 3)])
	var similar []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.Contains(strings.ToLower(entry.Name()), prefix) {
			similar = append(similar, entry.Name())
		}
	}
	return similar[:min(len(similar), 3)]
}
