package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"
)

func newTestErrorHandler(verbose bool) (*CLIErrorHandler, *bytes.Buffer) {
	var out bytes.Buffer
	return &CLIErrorHandler{
		logger:  logger.NewNopLogger(),
		out:     &out,
		verbose: verbose,
	}, &out
}

func TestHandleError_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"file error", errors.FileError(errors.CodeFileNotFound, "/tmp/missing.csv", os.ErrNotExist), 2},
		{"parse error", errors.MissingColumnError("leon.csv", []string{"Trip number"}, []string{"Date ADEP"}), 3},
		{"no records", errors.NoRecordsError([]string{"A2401.txt"}, 12), 3},
		{"configuration error", errors.ConfigurationError(errors.CodeInvalidConfig, "layout", "oceanic", nil), 4},
		{"reconciliation error", errors.ReconciliationError(errors.CodeScheduleNotLoaded, "reconcile", nil), 5},
		{"wrapped audit error", fmt.Errorf("audit: %w", errors.InternalError(errors.CodeCancelled, "audit", nil)), 5},
		{"generic not found", &os.PathError{Op: "open", Path: "x", Err: syscall.ENOENT}, 2},
		{"generic permission", fmt.Errorf("open x: permission denied"), 2},
		{"disk full", syscall.ENOSPC, 2},
		{"unknown flag", fmt.Errorf("unknown flag: --invoice-files"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := newTestErrorHandler(false)
			if code := handler.HandleError(tt.err); code != tt.expected {
				t.Errorf("expected exit code %d, got %d", tt.expected, code)
			}
		})
	}
}

func TestHandleError_Output(t *testing.T) {
	handler, out := newTestErrorHandler(false)

	err := errors.MissingColumnError("leon.csv", []string{"Trip number", "Aircraft"}, []string{"Date ADEP", "Aircraft"})
	handler.HandleError(err)

	output := out.String()
	expected := []string{
		"Error: ",
		"Context:",
		"file: leon.csv",
		"Suggestion: ",
		"Parse error help:",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q, got:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Underlying error") {
		t.Error("underlying error should only be shown in verbose mode")
	}
}

func TestHandleError_VerboseShowsCause(t *testing.T) {
	handler, out := newTestErrorHandler(true)

	handler.HandleError(errors.ConfigurationError(errors.CodeInvalidConfig, "layout-file", "layouts.yaml",
		fmt.Errorf("yaml: line 3: mapping values are not allowed")))

	if !strings.Contains(out.String(), "Underlying error: yaml: line 3") {
		t.Errorf("expected underlying error in verbose output, got:\n%s", out.String())
	}
}

func TestHandleError_SimilarFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"leon_january.csv", "leon_february.csv", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}

	handler, out := newTestErrorHandler(false)
	missing := filepath.Join(dir, "leon.csv")
	handler.HandleError(validateFileExists(missing, "schedule file"))

	output := out.String()
	if !strings.Contains(output, "Similar files found:") {
		t.Fatalf("expected similar files section, got:\n%s", output)
	}
	if !strings.Contains(output, "leon_january.csv") || !strings.Contains(output, "leon_february.csv") {
		t.Errorf("expected both schedule exports listed, got:\n%s", output)
	}
	if strings.Contains(output, "notes.txt") {
		t.Errorf("unrelated file should not be listed, got:\n%s", output)
	}
}

func TestGetCategoryHelp(t *testing.T) {
	categories := []errors.ErrorCategory{
		errors.CategoryFile,
		errors.CategoryParse,
		errors.CategoryValidation,
		errors.CategoryConfiguration,
		errors.CategoryReconciliation,
		errors.CategoryInternal,
	}

	seen := make(map[string]bool)
	for _, category := range categories {
		help := getCategoryHelp(category)
		if help == "" {
			t.Errorf("expected help for %s", category)
		}
		seen[help] = true
	}
	if len(seen) != len(categories) {
		t.Errorf("expected distinct help per category, got %d distinct texts", len(seen))
	}
}
