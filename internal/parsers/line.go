package parsers

import (
	stderrors "errors"
	"regexp"
	"strings"

	"airspace-charge-auditor/internal/models"
	"airspace-charge-auditor/pkg/errors"

	"github.com/shopspring/decimal"
)

// Rejection reasons returned by LineParser.Parse. They are skip signals for the
// caller, never failures of the file.
var (
	ErrLineTooShort    = stderrors.New("line shorter than minimum length")
	ErrNotFlightRecord = stderrors.New("line is not a flight charge record")
	ErrMissingCallsign = stderrors.New("line has no callsign")
)

// LineParser turns one charge line into a ChargeRecord. It holds only compiled,
// read-only patterns and is safe for concurrent use.
type LineParser struct {
	layout        *LineLayout
	route         *regexp.Regexp
	registration  *regexp.Regexp
	decimalAmount *regexp.Regexp
	integerAmount *regexp.Regexp
}

// NewLineParser compiles the given layout; a nil layout selects EurocontrolLayout
func NewLineParser(layout *LineLayout) (*LineParser, error) {
	if layout == nil {
		layout = EurocontrolLayout()
	}

	if err := layout.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "layout", layout.Name, err)
	}

	alternatives := make([]string, len(layout.RegistrationPatterns))
	for i, p := range layout.RegistrationPatterns {
		alternatives[i] = "(?:" + p + ")"
	}

	return &LineParser{
		layout:        layout,
		route:         regexp.MustCompile(layout.RoutePattern),
		registration:  regexp.MustCompile(strings.Join(alternatives, "|")),
		decimalAmount: regexp.MustCompile(layout.DecimalAmountPattern),
		integerAmount: regexp.MustCompile(layout.IntegerAmountPattern),
	}, nil
}

// Layout returns the layout the parser was built from
func (p *LineParser) Layout() *LineLayout {
	return p.layout
}

// Parse extracts a charge record from a single line. Provenance fields are left
// empty; the caller attaches them per file.
func (p *LineParser) Parse(line string) (*models.ChargeRecord, error) {
	runes := []rune(line)

	if len(runes) < p.layout.MinLength {
		return nil, ErrLineTooShort
	}
	if p.layout.RecordType.Slice(runes) != p.layout.RecordTypeCode {
		return nil, ErrNotFlightRecord
	}

	callsign := firstToken(p.layout.Callsign.Slice(runes))
	if callsign == "" {
		return nil, ErrMissingCallsign
	}

	departure, arrival := p.extractRoute(runes)

	return &models.ChargeRecord{
		FlightDate:    strings.ReplaceAll(p.layout.Date.Slice(runes), "/", "-"),
		Callsign:      callsign,
		Registration:  p.extractRegistration(line),
		DepartureICAO: departure,
		ArrivalICAO:   arrival,
		Amount:        p.extractAmount(p.layout.AmountWindow.Slice(runes)),
		RawLine:       strings.TrimSpace(line),
	}, nil
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// extractRoute searches the route window for a contiguous station pair and falls
// back to the fixed departure/arrival columns. Empty stations are tolerated.
// Stations are upper-cased to compare equal with schedule stations.
func (p *LineParser) extractRoute(runes []rune) (string, string) {
	window := p.layout.RouteWindow.Slice(runes)
	if pair := []rune(p.route.FindString(window)); len(pair) >= 8 {
		return strings.ToUpper(string(pair[:4])), strings.ToUpper(string(pair[4:8]))
	}

	return strings.ToUpper(strings.TrimSpace(p.layout.Departure.Slice(runes))),
		strings.ToUpper(strings.TrimSpace(p.layout.Arrival.Slice(runes)))
}

func (p *LineParser) extractRegistration(line string) string {
	match := p.registration.FindString(line)
	if match == "" {
		return models.UnknownRegistration
	}
	return models.NormalizeRegistration(match)
}

// extractAmount prefers comma-decimal amounts and falls back to whole numbers
// standing between spaces. The first strictly positive candidate wins.
func (p *LineParser) extractAmount(window string) decimal.Decimal {
	for _, candidate := range p.decimalAmount.FindAllString(window, -1) {
		if amount, ok := positiveAmount(strings.Replace(candidate, ",", ".", 1)); ok {
			return amount
		}
	}

	for _, groups := range p.integerAmount.FindAllStringSubmatch(window, -1) {
		candidate := groups[0]
		if len(groups) > 1 {
			candidate = groups[1]
		}
		if amount, ok := positiveAmount(strings.TrimSpace(candidate)); ok {
			return amount
		}
	}

	return decimal.Zero
}

func positiveAmount(s string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(s)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}
