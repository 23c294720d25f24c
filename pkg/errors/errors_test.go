package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAuditError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "parse error",
			category:   CategoryParse,
			code:       CodeInvalidFormat,
			message:    "invalid format",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *AuditError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected stack trace to be captured")
			}
		})
	}
}

func TestAuditErrorWithContext(t *testing.T) {
	err := New(CategoryFile, CodeFileNotFound, "test error").
		WithContext("file", "/path/to/file").
		WithContext("row", 42).
		WithSuggestion("check file path")

	if err.Context["file"] != "/path/to/file" {
		t.Errorf("expected file context '/path/to/file', got %v", err.Context["file"])
	}
	if err.Context["row"] != 42 {
		t.Errorf("expected row context 42, got %v", err.Context["row"])
	}

	expected := "test error (suggestion: check file path)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("FileError", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileError(CodeFilePermission, "/test/leon.csv", cause)

		if err.Category != CategoryFile {
			t.Errorf("expected file category, got %s", err.Category)
		}
		if err.Context["file_path"] != "/test/leon.csv" {
			t.Errorf("expected file_path context, got %v", err.Context["file_path"])
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("ParseError", func(t *testing.T) {
		err := ParseError(CodeInvalidFormat, "leon.csv", 10, "Date ADEP", nil)

		if err.Category != CategoryParse {
			t.Errorf("expected parse category, got %s", err.Category)
		}
		if err.Context["row"] != 10 {
			t.Errorf("expected row context, got %v", err.Context["row"])
		}
		if err.Context["column"] != "Date ADEP" {
			t.Errorf("expected column context, got %v", err.Context["column"])
		}
	})

	t.Run("NoRecordsError", func(t *testing.T) {
		err := NoRecordsError([]string{"A1.txt", "M2.txt"}, 12)

		if err.Message != "No valid flight lines found" {
			t.Errorf("expected empty batch message, got %q", err.Message)
		}
		if err.HTTPStatus() != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", err.HTTPStatus())
		}
		if err.Context["lines_read"] != 12 {
			t.Errorf("expected lines_read context, got %v", err.Context["lines_read"])
		}
	})

	t.Run("MissingColumnError", func(t *testing.T) {
		err := MissingColumnError("/tmp/leon.csv",
			[]string{"Date ADEP", "Aircraft", "Trip number"},
			[]string{"date adep", "Trip number"})

		if err.Code != CodeMissingColumn {
			t.Errorf("expected missing column code, got %s", err.Code)
		}
		missing, ok := err.Context["missing_columns"].([]string)
		if !ok || len(missing) != 1 || missing[0] != "Aircraft" {
			t.Errorf("expected [Aircraft] missing, got %v", err.Context["missing_columns"])
		}
		if err.HTTPStatus() != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", err.HTTPStatus())
		}
	})
}

func TestAsAuditError(t *testing.T) {
	auditErr := New(CategoryFile, CodeFileNotFound, "test")
	wrapped := fmt.Errorf("loading schedule: %w", auditErr)

	if extracted, ok := AsAuditError(wrapped); !ok || extracted != auditErr {
		t.Error("expected AsAuditError to extract AuditError from chain")
	}
	if _, ok := AsAuditError(errors.New("generic error")); ok {
		t.Error("expected AsAuditError to return false for generic error")
	}
	if _, ok := AsAuditError(nil); ok {
		t.Error("expected AsAuditError to return false for nil")
	}
	if !HasCode(wrapped, CodeFileNotFound) {
		t.Error("expected HasCode to find code through wrapping")
	}
	if IsAuditError(nil) {
		t.Error("expected IsAuditError to return false for nil")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	auditErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if result := WrapIfNeeded(auditErr, CategoryParse, CodeInvalidFormat, "wrapped"); result != auditErr {
		t.Error("expected WrapIfNeeded to return original AuditError")
	}

	result := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if result.Cause != genericErr || result.Category != CategoryParse {
		t.Error("expected WrapIfNeeded to wrap generic error")
	}

	if WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped") != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryConfiguration, 4},
		{CategoryReconciliation, 5},
		{CategoryInternal, 5},
		{"unknown", 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}

func TestFindMissingColumns(t *testing.T) {
	missing := FindMissingColumns(
		[]string{"Date ADEP", "Aircraft", "ADEP ICAO"},
		[]string{" date adep ", "ADEP ICAO"},
	)

	if len(missing) != 1 || missing[0] != "Aircraft" {
		t.Errorf("expected [Aircraft], got %v", missing)
	}
}
