package parsers

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"airspace-charge-auditor/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Zone is a rune range of a charge line. End < 0 means "to the end of the line".
type Zone struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// Slice returns the part of line covered by the zone, clipped to the line bounds
func (z Zone) Slice(line []rune) string {
	end := z.End
	if end < 0 {
		end = len(line)
	}
	return safeSlice(line, z.Start, end)
}

func (z Zone) validate(name string) error {
	if z.Start < 0 {
		return fmt.Errorf("zone %s: start cannot be negative", name)
	}
	if z.End >= 0 && z.End <= z.Start {
		return fmt.Errorf("zone %s: end (%d) must be after start (%d)", name, z.End, z.Start)
	}
	return nil
}

// safeSlice never panics: out-of-range bounds are clipped and an inverted
// range yields the empty string.
func safeSlice(line []rune, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(line) {
		end = len(line)
	}
	if start >= end {
		return ""
	}
	return string(line[start:end])
}

// LineLayout describes where a billing provider puts each field on a charge line.
// Offsets are fixed; patterns are searched within their zones.
type LineLayout struct {
	Name string `yaml:"name" json:"name"`

	MinLength      int    `yaml:"min_length" json:"min_length"`
	RecordType     Zone   `yaml:"record_type" json:"record_type"`
	RecordTypeCode string `yaml:"record_type_code" json:"record_type_code"`

	Date     Zone `yaml:"date" json:"date"`
	Callsign Zone `yaml:"callsign" json:"callsign"`

	RouteWindow  Zone   `yaml:"route_window" json:"route_window"`
	RoutePattern string `yaml:"route_pattern" json:"route_pattern"`
	Departure    Zone   `yaml:"departure" json:"departure"`
	Arrival      Zone   `yaml:"arrival" json:"arrival"`

	// RegistrationPatterns are combined into one alternation searched over the
	// whole line; the leftmost match wins, earlier patterns win ties.
	RegistrationPatterns []string `yaml:"registration_patterns" json:"registration_patterns"`

	AmountWindow         Zone   `yaml:"amount_window" json:"amount_window"`
	DecimalAmountPattern string `yaml:"decimal_amount_pattern" json:"decimal_amount_pattern"`
	IntegerAmountPattern string `yaml:"integer_amount_pattern" json:"integer_amount_pattern"`
}

// EurocontrolLayout returns the layout of Eurocontrol route and terminal charge files
func EurocontrolLayout() *LineLayout {
	return &LineLayout{
		Name:           "eurocontrol",
		MinLength:      10,
		RecordType:     Zone{Start: 7, End: 9},
		RecordTypeCode: "01",
		Date:           Zone{Start: 9, End: 19},
		Callsign:       Zone{Start: 25, End: 35},
		RouteWindow:    Zone{Start: 35, End: 55},
		RoutePattern:   `[A-Z]{8}`,
		Departure:      Zone{Start: 38, End: 42},
		Arrival:        Zone{Start: 42, End: 46},
		RegistrationPatterns: []string{
			NationalRegistrationPattern("4X"),
			`\bN[0-9]{1,5}[A-Z]{0,2}`,
		},
		AmountWindow:         Zone{Start: 35, End: -1},
		DecimalAmountPattern: `\d+,\d+`,
		IntegerAmountPattern: `\s(\d+)\s`,
	}
}

// NationalRegistrationPattern builds the pattern for a two character national
// prefix followed by an optional dash and a three letter suffix.
func NationalRegistrationPattern(prefix string) string {
	return regexp.QuoteMeta(strings.ToUpper(prefix)) + `-?[A-Z]{3}`
}

// Validate checks zones and patterns of the layout
func (l *LineLayout) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("layout name cannot be empty")
	}
	if l.MinLength < 0 {
		return fmt.Errorf("layout %s: min length cannot be negative", l.Name)
	}
	if l.RecordTypeCode == "" {
		return fmt.Errorf("layout %s: record type code cannot be empty", l.Name)
	}

	zones := map[string]Zone{
		"record_type":   l.RecordType,
		"date":          l.Date,
		"callsign":      l.Callsign,
		"route_window":  l.RouteWindow,
		"departure":     l.Departure,
		"arrival":       l.Arrival,
		"amount_window": l.AmountWindow,
	}
	for name, zone := range zones {
		if err := zone.validate(name); err != nil {
			return fmt.Errorf("layout %s: %w", l.Name, err)
		}
	}

	if len(l.RegistrationPatterns) == 0 {
		return fmt.Errorf("layout %s: at least one registration pattern is required", l.Name)
	}

	patterns := map[string]string{
		"route_pattern":          l.RoutePattern,
		"decimal_amount_pattern": l.DecimalAmountPattern,
		"integer_amount_pattern": l.IntegerAmountPattern,
	}
	for i, p := range l.RegistrationPatterns {
		patterns[fmt.Sprintf("registration_patterns[%d]", i)] = p
	}
	for name, p := range patterns {
		if p == "" {
			return fmt.Errorf("layout %s: %s cannot be empty", l.Name, name)
		}
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("layout %s: invalid %s: %w", l.Name, name, err)
		}
	}

	return nil
}

// LoadLayouts reads provider layout profiles from a YAML file.
// Zones left out of a profile inherit the Eurocontrol defaults.
func LoadLayouts(path string) (map[string]*LineLayout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}

	return ParseLayouts(data, path)
}

// ParseLayouts decodes layout profiles from YAML
func ParseLayouts(data []byte, source string) (map[string]*LineLayout, error) {
	var raw struct {
		Layouts []yaml.Node `yaml:"layouts"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "layout-file", source, err)
	}

	layouts := make(map[string]*LineLayout, len(raw.Layouts))
	for i := range raw.Layouts {
		layout := EurocontrolLayout()
		layout.Name = ""
		if err := raw.Layouts[i].Decode(layout); err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "layout-file", source, err)
		}
		if err := layout.Validate(); err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "layout-file", source, err)
		}
		if _, exists := layouts[layout.Name]; exists {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "layout-file", source,
				fmt.Errorf("duplicate layout name %q", layout.Name))
		}
		layouts[layout.Name] = layout
	}

	if len(layouts) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "layouts", source, nil)
	}

	return layouts, nil
}
