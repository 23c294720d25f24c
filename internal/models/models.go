package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// UnknownRegistration marks a charge line with no recognisable tail number
	UnknownRegistration = "UNKNOWN"
	// UnknownInvoiceRef marks a charge file whose header carries no invoice reference
	UnknownInvoiceRef = "UNKNOWN_REF"

	// DateLayout is the canonical flight date layout used for joining
	DateLayout = "2006-01-02"
)

// ChargeType represents the coarse category of an airspace fee
type ChargeType string

const (
	ChargeTypeOceanic  ChargeType = "Shanwick/Oceanic"
	ChargeTypeTerminal ChargeType = "Terminal/Other"
	ChargeTypeRoute    ChargeType = "Route Charges"
	ChargeTypeUnknown  ChargeType = "Unknown"
)

// String returns the string representation of ChargeType
func (c ChargeType) String() string {
	return string(c)
}

// ChargeRecord is one flight charge line recovered from a billing file
type ChargeRecord struct {
	FlightDate    string          `json:"flight_date"`
	Callsign      string          `json:"callsign"`
	Registration  string          `json:"registration"`
	DepartureICAO string          `json:"departure_icao"`
	ArrivalICAO   string          `json:"arrival_icao"`
	Amount        decimal.Decimal `json:"amount"`
	RawLine       string          `json:"raw_line"`

	// Provenance, attached per file by the ingestion caller
	SourceFile string     `json:"source_file,omitempty"`
	ChargeType ChargeType `json:"charge_type,omitempty"`
	InvoiceRef string     `json:"invoice_ref,omitempty"`
}

// HasRegistration reports whether a tail number was recovered from the line
func (c *ChargeRecord) HasRegistration() bool {
	return c.Registration != "" && c.Registration != UnknownRegistration
}

// String returns a string representation of the ChargeRecord
func (c *ChargeRecord) String() string {
	return fmt.Sprintf("ChargeRecord{Date: %s, Callsign: %s, Reg: %s, Route: %s-%s, Amount: %s}",
		c.FlightDate, c.Callsign, c.Registration, c.DepartureICAO, c.ArrivalICAO, c.Amount.StringFixed(2))
}

// MarshalJSON emits the amount as a JSON number with two decimals
func (c *ChargeRecord) MarshalJSON() ([]byte, error) {
	type Alias ChargeRecord
	return json.Marshal(&struct {
		Amount json.Number `json:"amount"`
		*Alias
	}{
		Amount: json.Number(c.Amount.StringFixed(2)),
		Alias:  (*Alias)(c),
	})
}

// ScheduleRecord is one operated flight leg from the schedule export
type ScheduleRecord struct {
	FlightDate    string `json:"flight_date"`
	Registration  string `json:"registration"`
	FlightNumber  string `json:"flight_number"`
	DepartureICAO string `json:"departure_icao"`
	ArrivalICAO   string `json:"arrival_icao"`
	TripID        string `json:"trip_id"`
	RowNumber     int    `json:"row_number"`
}

// HasValidDate reports whether the schedule date could be interpreted.
// Rows without one never join.
func (s *ScheduleRecord) HasValidDate() bool {
	return s.FlightDate != ""
}

// MatchStatus is the terminal classification of a charge record
type MatchStatus string

const (
	StatusMatched   MatchStatus = "matched"
	StatusUnmatched MatchStatus = "unmatched"
)

// MatchMethod names the join tier that resolved a charge record
type MatchMethod string

const (
	MethodRegistration MatchMethod = "registration"
	MethodFlightNumber MatchMethod = "flight_number"
	MethodNone         MatchMethod = "none"
)

// String returns the string representation of MatchMethod
func (m MatchMethod) String() string {
	return string(m)
}

// MatchResult is the reconciliation outcome for one charge record
type MatchResult struct {
	TripID string      `json:"trip_id"`
	Status MatchStatus `json:"match_status"`
	Method MatchMethod `json:"match_method"`
}

// NewMatchedResult creates a result resolved to tripID by the given tier
func NewMatchedResult(tripID string, method MatchMethod) *MatchResult {
	return &MatchResult{
		TripID: tripID,
		Status: StatusMatched,
		Method: method,
	}
}

// NewUnmatchedResult creates a result for a charge that joined no schedule row
func NewUnmatchedResult() *MatchResult {
	return &MatchResult{
		Status: StatusUnmatched,
		Method: MethodNone,
	}
}

// IsMatched returns true if the charge was resolved to a trip
func (m *MatchResult) IsMatched() bool {
	return m != nil && m.Status == StatusMatched
}

// MarshalJSON emits a null trip_id for unmatched results
func (m *MatchResult) MarshalJSON() ([]byte, error) {
	var tripID *string
	if m.TripID != "" {
		tripID = &m.TripID
	}
	return json.Marshal(&struct {
		TripID *string     `json:"trip_id"`
		Status MatchStatus `json:"match_status"`
		Method MatchMethod `json:"match_method"`
	}{
		TripID: tripID,
		Status: m.Status,
		Method: m.Method,
	})
}

// AuditRecord pairs a charge record with its reconciliation outcome
type AuditRecord struct {
	Charge *ChargeRecord
	Match  *MatchResult
}

// MarshalJSON flattens the charge and its outcome into one row
func (r *AuditRecord) MarshalJSON() ([]byte, error) {
	var tripID *string
	if r.Match != nil && r.Match.TripID != "" {
		tripID = &r.Match.TripID
	}
	status, method := StatusUnmatched, MethodNone
	if r.Match != nil {
		status, method = r.Match.Status, r.Match.Method
	}

	type Alias ChargeRecord
	return json.Marshal(&struct {
		Amount json.Number `json:"amount"`
		*Alias
		TripID *string     `json:"trip_id"`
		Status MatchStatus `json:"match_status"`
		Method MatchMethod `json:"match_method"`
	}{
		Amount: json.Number(r.Charge.Amount.StringFixed(2)),
		Alias:  (*Alias)(r.Charge),
		TripID: tripID,
		Status: status,
		Method: method,
	})
}

// dayFirstLayouts are tried in order; ISO forms come first so they are never read day-first
var dayFirstLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2/1/2006",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
	"2-1-2006",
	"2-1-2006 15:04",
	"2-1-2006 15:04:05",
	"2.1.2006",
	"2.1.2006 15:04",
	"2.1.2006 15:04:05",
	"2/1/06",
	"2/1/06 15:04",
	"2-1-06",
	"2.1.06",
	"2-Jan-2006",
	"2 Jan 2006",
	"2-Jan-06",
}

// ParseDayFirstDate interprets a locale-ambiguous date as day-first and
// returns it in canonical YYYY-MM-DD form.
func ParseDayFirstDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}

	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(DateLayout), true
		}
	}
	return "", false
}

// NormalizeFlightDate returns the canonical form of a charge line date,
// or the trimmed input when it cannot be interpreted.
func NormalizeFlightDate(value string) string {
	if normalized, ok := ParseDayFirstDate(value); ok {
		return normalized
	}
	return strings.TrimSpace(value)
}

// NormalizeRegistration strips separators and spaces from a tail number
func NormalizeRegistration(value string) string {
	value = strings.ReplaceAll(value, "-", "")
	value = strings.Join(strings.Fields(value), "")
	return strings.ToUpper(value)
}
