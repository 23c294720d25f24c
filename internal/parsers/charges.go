package parsers

import (
	stderrors "errors"
	"fmt"

	"airspace-charge-auditor/internal/models"
	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"
)

// ChargeParseStats holds statistics about parsing one or more charge files
type ChargeParseStats struct {
	Files           int `json:"files"`
	LinesRead       int `json:"lines_read"`
	RecordsParsed   int `json:"records_parsed"`
	ShortLines      int `json:"short_lines"`
	OtherRecords    int `json:"other_records"`
	MissingCallsign int `json:"missing_callsign"`
	ZeroAmounts     int `json:"zero_amounts"`
	NoRegistration  int `json:"unknown_registration"`
}

// Skipped returns the number of lines that produced no record
func (s *ChargeParseStats) Skipped() int {
	return s.ShortLines + s.OtherRecords + s.MissingCallsign
}

// Merge adds the counters of other into s
func (s *ChargeParseStats) Merge(other *ChargeParseStats) {
	if other == nil {
		return
	}
	s.Files += other.Files
	s.LinesRead += other.LinesRead
	s.RecordsParsed += other.RecordsParsed
	s.ShortLines += other.ShortLines
	s.OtherRecords += other.OtherRecords
	s.MissingCallsign += other.MissingCallsign
	s.ZeroAmounts += other.ZeroAmounts
	s.NoRegistration += other.NoRegistration
}

// String returns a human-readable summary of parsing statistics
func (s *ChargeParseStats) String() string {
	return fmt.Sprintf("Read %d lines from %d files, %d flight records, %d skipped",
		s.LinesRead, s.Files, s.RecordsParsed, s.Skipped())
}

// ChargeFileParser parses whole billing files and attaches provenance to each record
type ChargeFileParser struct {
	config     *ChargeParserConfig
	line       *LineParser
	invoiceRef InvoiceRefStrategy
	logger     logger.Logger
}

// NewChargeFileParser creates a parser; a nil config selects DefaultChargeParserConfig
func NewChargeFileParser(config *ChargeParserConfig) (*ChargeFileParser, error) {
	if config == nil {
		config = DefaultChargeParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "charge_parser", config.InvoiceRef, err)
	}

	lineParser, err := NewLineParser(config.Layout)
	if err != nil {
		return nil, err
	}

	strategy, err := NewInvoiceRefStrategy(config.InvoiceRef)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "invoice-ref", config.InvoiceRef, err)
	}

	return &ChargeFileParser{
		config:     config,
		line:       lineParser,
		invoiceRef: strategy,
		logger:     logger.GetGlobalLogger().WithComponent("parsers.charges"),
	}, nil
}

// ParseFile reads and parses a charge file from disk
func (p *ChargeFileParser) ParseFile(path string) ([]*models.ChargeRecord, *ChargeParseStats, error) {
	source, err := ReadSource(path)
	if err != nil {
		return nil, nil, err
	}
	records, stats := p.ParseContent(source.Name, source.Content)
	return records, stats, nil
}

// ParseContent parses the raw bytes of a charge file. Decoding is lossy and no
// line can fail the file, so only a record slice and statistics are returned.
func (p *ChargeFileParser) ParseContent(name string, content []byte) ([]*models.ChargeRecord, *ChargeParseStats) {
	lines := splitLines(decodeLossy(content))
	chargeType := ClassifyChargeType(name)
	invoiceRef := p.invoiceRef.InvoiceRef(name, lines)

	stats := &ChargeParseStats{Files: 1, LinesRead: len(lines)}
	records := make([]*models.ChargeRecord, 0, len(lines))

	for _, line := range lines {
		record, err := p.line.Parse(line)
		if err != nil {
			switch {
			case stderrors.Is(err, ErrLineTooShort):
				stats.ShortLines++
			case stderrors.Is(err, ErrNotFlightRecord):
				stats.OtherRecords++
			case stderrors.Is(err, ErrMissingCallsign):
				stats.MissingCallsign++
			}
			continue
		}

		record.FlightDate = models.NormalizeFlightDate(record.FlightDate)
		record.SourceFile = name
		record.ChargeType = chargeType
		record.InvoiceRef = invoiceRef

		if record.Amount.IsZero() {
			stats.ZeroAmounts++
		}
		if !record.HasRegistration() {
			stats.NoRegistration++
		}
		records = append(records, record)
	}
	stats.RecordsParsed = len(records)

	p.logger.WithFields(logger.Fields{
		"file":        name,
		"charge_type": chargeType,
		"invoice_ref": invoiceRef,
		"lines":       stats.LinesRead,
		"records":     stats.RecordsParsed,
		"skipped":     stats.Skipped(),
	}).Debug("Parsed charge file")

	return records, stats
}
