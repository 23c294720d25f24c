// Package config maps command line and file settings onto the typed
// configurations of the audit components.
package config

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"airspace-charge-auditor/internal/api"
	"airspace-charge-auditor/internal/matcher"
	"airspace-charge-auditor/internal/parsers"
	"airspace-charge-auditor/internal/reconciler"
	"airspace-charge-auditor/internal/reporter"
	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"

	"github.com/spf13/viper"
)

// CreateLoggerConfig creates the logger configuration. --verbose forces the debug level.
func CreateLoggerConfig() (*logger.Config, error) {
	config := logger.DefaultConfig()

	if level := viper.GetString("log-level"); level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format := viper.GetString("log-format"); format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if file := viper.GetString("log-file"); file != "" {
		config.Output = logger.FileOutput
		config.File = file
	}
	if viper.GetBool("verbose") {
		config.Level = logger.DebugLevel
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", config.Level, err)
	}
	return config, nil
}

// CreateLineLayout selects the charge line layout. Without a layout file only
// the built-in Eurocontrol layout is available.
func CreateLineLayout() (*parsers.LineLayout, error) {
	layoutFile := viper.GetString("layout-file")
	name := viper.GetString("layout")

	if layoutFile == "" {
		layout := parsers.EurocontrolLayout()
		if name != "" && name != layout.Name {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "layout", name,
				fmt.Errorf("layout %q needs a --layout-file", name))
		}
		return layout, nil
	}

	layouts, err := parsers.LoadLayouts(layoutFile)
	if err != nil {
		return nil, err
	}

	if name == "" {
		if len(layouts) == 1 {
			for _, layout := range layouts {
				return layout, nil
			}
		}
		name = parsers.EurocontrolLayout().Name
	}

	layout, ok := layouts[name]
	if !ok {
		available := make([]string, 0, len(layouts))
		for n := range layouts {
			available = append(available, n)
		}
		sort.Strings(available)
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "layout", name,
			fmt.Errorf("layout %q not found in %s", name, layoutFile)).
			WithSuggestion("available layouts: " + strings.Join(available, ", "))
	}
	return layout, nil
}

// CreateChargeParserConfig creates the charge file parser configuration
func CreateChargeParserConfig() (*parsers.ChargeParserConfig, error) {
	layout, err := CreateLineLayout()
	if err != nil {
		return nil, err
	}

	config := parsers.DefaultChargeParserConfig()
	config.Layout = layout
	if ref := viper.GetString("invoice-ref"); ref != "" {
		config.InvoiceRef = strings.ToLower(ref)
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "invoice-ref", config.InvoiceRef, err).
			WithSuggestion("use --invoice-ref header or --invoice-ref filename")
	}
	return config, nil
}

// CreateScheduleConfig creates the schedule loader configuration. Column names
// can be overridden from a config file under schedule-columns.
func CreateScheduleConfig() (*parsers.ScheduleConfig, error) {
	config := parsers.DefaultScheduleConfig()

	if viper.IsSet("schedule-columns") {
		if err := viper.UnmarshalKey("schedule-columns", &config.Columns); err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "schedule-columns", nil, err)
		}
	}

	if delimiter := viper.GetString("schedule-delimiter"); delimiter != "" {
		if delimiter == `\t` || delimiter == "tab" {
			delimiter = "\t"
		}
		if utf8.RuneCountInString(delimiter) != 1 {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "schedule-delimiter", delimiter,
				fmt.Errorf("delimiter must be a single character"))
		}
		config.Delimiter, _ = utf8.DecodeRuneInString(delimiter)
	}
	config.Sheet = viper.GetString("schedule-sheet")

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "schedule", nil, err)
	}
	return config, nil
}

// CreateMatchingConfig creates the matching configuration
func CreateMatchingConfig() (*matcher.MatchingConfig, error) {
	config := matcher.DefaultMatchingConfig()

	policy, err := matcher.ParseDuplicatePolicy(viper.GetString("duplicate-policy"))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "duplicate-policy",
			viper.GetString("duplicate-policy"), err)
	}
	config.DuplicatePolicy = policy

	if viper.IsSet("flight-number-fallback") {
		config.FlightNumberFallback = viper.GetBool("flight-number-fallback")
	}

	return config, nil
}

// CreateReconcilerConfig creates the audit service configuration
func CreateReconcilerConfig() (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()

	config.ProgressReporting = viper.GetBool("progress")
	if viper.IsSet("max-concurrent-files") {
		config.MaxConcurrentFiles = viper.GetInt("max-concurrent-files")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "max-concurrent-files",
			config.MaxConcurrentFiles, err)
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	if format != "" {
		config.Format = reporter.OutputFormat(strings.ToLower(format))
	}

	switch config.Format {
	case reporter.FormatConsole:
		config.UseColors = !viper.GetBool("no-color")
		if viper.IsSet("max-console-rows") {
			config.MaxConsoleRows = viper.GetInt("max-console-rows")
		}
	case reporter.FormatJSON:
		config.UseColors = false
	case reporter.FormatCSV, reporter.FormatXLSX:
		config.UseColors = false
		config.IncludeStats = false
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format, err).
			WithSuggestion("use one of: console, json, csv, xlsx")
	}
	return config, nil
}

// CreateServerConfig creates the HTTP server configuration
func CreateServerConfig() (*api.Config, error) {
	config := api.DefaultConfig()

	if addr := viper.GetString("addr"); addr != "" {
		config.Addr = addr
	}
	if origins := viper.GetStringSlice("cors-origins"); len(origins) > 0 {
		config.AllowedOrigins = origins
	}
	if viper.IsSet("max-upload-mb") {
		config.MaxUploadMB = viper.GetInt64("max-upload-mb")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "server", config.Addr, err)
	}
	return config, nil
}

// CreateAuditService wires the audit service from the current settings
func CreateAuditService() (*reconciler.AuditService, error) {
	chargeConfig, err := CreateChargeParserConfig()
	if err != nil {
		return nil, err
	}

	scheduleConfig, err := CreateScheduleConfig()
	if err != nil {
		return nil, err
	}

	matchingConfig, err := CreateMatchingConfig()
	if err != nil {
		return nil, err
	}

	reconcilerConfig, err := CreateReconcilerConfig()
	if err != nil {
		return nil, err
	}

	return reconciler.NewAuditService(chargeConfig, scheduleConfig, matchingConfig, reconcilerConfig)
}
