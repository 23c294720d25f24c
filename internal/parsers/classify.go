package parsers

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"airspace-charge-auditor/internal/models"
)

// chargeTypePrefixes is checked in order, so longer prefixes must come first
var chargeTypePrefixes = []struct {
	prefix     string
	chargeType models.ChargeType
}{
	{"AIC", models.ChargeTypeOceanic},
	{"M", models.ChargeTypeTerminal},
	{"B", models.ChargeTypeTerminal},
	{"A", models.ChargeTypeRoute},
}

// ClassifyChargeType infers the fee category from the billing file name
func ClassifyChargeType(filename string) models.ChargeType {
	name := strings.ToUpper(filepath.Base(filename))
	for _, entry := range chargeTypePrefixes {
		if strings.HasPrefix(name, entry.prefix) {
			return entry.chargeType
		}
	}
	return models.ChargeTypeUnknown
}

// InvoiceRefStrategy derives the invoice reference of a charge file
type InvoiceRefStrategy interface {
	Name() string
	InvoiceRef(filename string, lines []string) string
}

const (
	InvoiceRefHeader   = "header"
	InvoiceRefFilename = "filename"
)

var headerInvoiceRefPattern = regexp.MustCompile(`\d{2}/\d{5,12}/\d{2}`)

// HeaderInvoiceRef reads the reference printed in the first lines of the file
type HeaderInvoiceRef struct {
	// ScanLines is the number of leading lines searched (3 when zero)
	ScanLines int
}

func (HeaderInvoiceRef) Name() string { return InvoiceRefHeader }

// InvoiceRef returns the first reference found, or UNKNOWN_REF
func (h HeaderInvoiceRef) InvoiceRef(_ string, lines []string) string {
	limit := h.ScanLines
	if limit <= 0 {
		limit = 3
	}
	if limit > len(lines) {
		limit = len(lines)
	}

	for _, line := range lines[:limit] {
		if ref := headerInvoiceRefPattern.FindString(line); ref != "" {
			return ref
		}
	}
	return models.UnknownInvoiceRef
}

// FilenameInvoiceRef uses the file name without its extension as the reference
type FilenameInvoiceRef struct{}

func (FilenameInvoiceRef) Name() string { return InvoiceRefFilename }

func (FilenameInvoiceRef) InvoiceRef(filename string, _ []string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewInvoiceRefStrategy returns the strategy registered under name
func NewInvoiceRefStrategy(name string) (InvoiceRefStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", InvoiceRefHeader:
		return HeaderInvoiceRef{}, nil
	case InvoiceRefFilename:
		return FilenameInvoiceRef{}, nil
	default:
		return nil, fmt.Errorf("unknown invoice reference strategy %q (valid: %s, %s)",
			name, InvoiceRefHeader, InvoiceRefFilename)
	}
}
