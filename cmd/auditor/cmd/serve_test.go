package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"airspace-charge-auditor/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestValidateServeFlags(t *testing.T) {
	layoutFile := filepath.Join(t.TempDir(), "layouts.yaml")
	layouts := "layouts:\n  - name: oceanic\n    record_type_code: \"02\"\n"
	if err := os.WriteFile(layoutFile, []byte(layouts), 0644); err != nil {
		t.Fatalf("failed to create layout file: %v", err)
	}

	tests := []struct {
		name          string
		setupFlags    func()
		expectError   bool
		errorContains string
	}{
		{
			name:       "defaults",
			setupFlags: func() {},
		},
		{
			name: "custom address and origins",
			setupFlags: func() {
				viper.Set("addr", ":9000")
				viper.Set("cors-origins", []string{"https://ops.example.com"})
				viper.Set("max-upload-mb", 64)
			},
		},
		{
			name: "layout from file",
			setupFlags: func() {
				viper.Set("layout-file", layoutFile)
				viper.Set("layout", "oceanic")
			},
		},
		{
			name: "zero upload limit",
			setupFlags: func() {
				viper.Set("max-upload-mb", 0)
			},
			expectError:   true,
			errorContains: "server",
		},
		{
			name: "unknown layout",
			setupFlags: func() {
				viper.Set("layout-file", layoutFile)
				viper.Set("layout", "pacific")
			},
			expectError:   true,
			errorContains: "layout",
		},
		{
			name: "invalid invoice reference",
			setupFlags: func() {
				viper.Set("invoice-ref", "footer")
			},
			expectError:   true,
			errorContains: "invoice-ref",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			tt.setupFlags()

			err := validateServeFlags(&cobra.Command{}, nil)

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
			if auditErr, ok := errors.AsAuditError(err); !ok || auditErr.GetExitCode() != 4 {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}
