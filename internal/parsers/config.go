package parsers

import (
	"fmt"
	"strings"
)

// ChargeParserConfig holds configuration for parsing billing charge files
type ChargeParserConfig struct {
	Layout     *LineLayout `json:"layout"`
	InvoiceRef string      `json:"invoice_ref"`
}

// DefaultChargeParserConfig returns the Eurocontrol layout with header invoice references
func DefaultChargeParserConfig() *ChargeParserConfig {
	return &ChargeParserConfig{
		Layout:     EurocontrolLayout(),
		InvoiceRef: InvoiceRefHeader,
	}
}

// Validate checks if the charge parser configuration is valid
func (c *ChargeParserConfig) Validate() error {
	if c.Layout == nil {
		return fmt.Errorf("layout cannot be nil")
	}
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if _, err := NewInvoiceRefStrategy(c.InvoiceRef); err != nil {
		return err
	}
	return nil
}

// ScheduleColumns names the schedule export columns after header normalization
type ScheduleColumns struct {
	Date         string `json:"date" mapstructure:"date"`
	Aircraft     string `json:"aircraft" mapstructure:"aircraft"`
	FlightNumber string `json:"flight_number" mapstructure:"flight_number"`
	Departure    string `json:"departure" mapstructure:"departure"`
	Arrival      string `json:"arrival" mapstructure:"arrival"`
	Trip         string `json:"trip" mapstructure:"trip"`
}

// LeonColumns returns the column names of a Leon flight schedule export
func LeonColumns() ScheduleColumns {
	return ScheduleColumns{
		Date:         "Date ADEP",
		Aircraft:     "Aircraft",
		FlightNumber: "Flight number",
		Departure:    "ADEP ICAO",
		Arrival:      "ADES ICAO",
		Trip:         "Trip number",
	}
}

// Required lists the columns without which no row can be joined
func (c ScheduleColumns) Required() []string {
	return []string{c.Date, c.Aircraft, c.Departure, c.Arrival, c.Trip}
}

// ScheduleConfig holds configuration for loading schedule exports
type ScheduleConfig struct {
	Columns   ScheduleColumns `json:"columns"`
	Delimiter rune            `json:"delimiter"`
	// Sheet selects the workbook sheet; empty means the first one
	Sheet string `json:"sheet,omitempty"`
}

// DefaultScheduleConfig returns a configuration for comma separated Leon exports
func DefaultScheduleConfig() *ScheduleConfig {
	return &ScheduleConfig{
		Columns:   LeonColumns(),
		Delimiter: ',',
	}
}

// Validate checks if the schedule configuration is valid
func (c *ScheduleConfig) Validate() error {
	named := map[string]string{
		"date":      c.Columns.Date,
		"aircraft":  c.Columns.Aircraft,
		"departure": c.Columns.Departure,
		"arrival":   c.Columns.Arrival,
		"trip":      c.Columns.Trip,
	}
	for field, column := range named {
		if strings.TrimSpace(column) == "" {
			return fmt.Errorf("%s column cannot be empty", field)
		}
	}

	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '\r' || c.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}

	return nil
}
