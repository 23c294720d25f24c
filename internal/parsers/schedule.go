package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"airspace-charge-auditor/internal/models"
	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// ScheduleParseStats holds statistics about loading a schedule export
type ScheduleParseStats struct {
	RowsRead      int    `json:"rows_read"`
	RowsLoaded    int    `json:"rows_loaded"`
	EmptyRows     int    `json:"empty_rows"`
	InvalidDates  int    `json:"invalid_dates"`
	MissingTrips  int    `json:"missing_trips"`
	Encoding      string `json:"encoding"`
	FlightNumbers bool   `json:"flight_numbers"`
}

// String returns a human-readable summary of the load
func (s *ScheduleParseStats) String() string {
	return fmt.Sprintf("Loaded %d of %d schedule rows (%d invalid dates, %d without trip)",
		s.RowsLoaded, s.RowsRead, s.InvalidDates, s.MissingTrips)
}

// ScheduleParser loads flight schedule exports into typed rows
type ScheduleParser struct {
	config *ScheduleConfig
	logger logger.Logger
}

// NewScheduleParser creates a parser; a nil config selects DefaultScheduleConfig
func NewScheduleParser(config *ScheduleConfig) (*ScheduleParser, error) {
	if config == nil {
		config = DefaultScheduleConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "schedule", config.Columns, err)
	}

	return &ScheduleParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("parsers.schedule"),
	}, nil
}

// ParseFile loads a schedule export from disk
func (p *ScheduleParser) ParseFile(path string) ([]*models.ScheduleRecord, *ScheduleParseStats, error) {
	source, err := ReadSource(path)
	if err != nil {
		return nil, nil, err
	}
	return p.ParseContent(source.Name, source.Content)
}

// ParseContent loads a schedule export; the format is chosen by the name's extension
func (p *ScheduleParser) ParseContent(name string, content []byte) ([]*models.ScheduleRecord, *ScheduleParseStats, error) {
	var (
		rows        [][]string
		encoding    string
		serialDates bool
		err         error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		rows, encoding, err = p.readCSV(name, content)
	case ".xlsx", ".xlsm":
		rows, err = p.readWorkbook(name, content)
		encoding, serialDates = "xlsx", true
	default:
		return nil, nil, errors.UnsupportedFormatError(name)
	}
	if err != nil {
		return nil, nil, err
	}

	records, stats, err := p.buildRecords(name, rows, serialDates)
	if err != nil {
		return nil, nil, err
	}
	stats.Encoding = encoding

	p.logger.WithFields(logger.Fields{
		"file":          name,
		"encoding":      encoding,
		"rows":          stats.RowsRead,
		"loaded":        stats.RowsLoaded,
		"invalid_dates": stats.InvalidDates,
	}).Info("Loaded flight schedule")

	return records, stats, nil
}

// readCSV decodes UTF-8 and falls back to Latin-1 when the bytes are not valid UTF-8
func (p *ScheduleParser) readCSV(name string, content []byte) ([][]string, string, error) {
	encoding := "utf-8"
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	if !utf8.Valid(content) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(content)
		if err != nil {
			return nil, "", errors.ParseError(errors.CodeEncodingError, name, 0, "", err)
		}
		p.logger.WithField("file", name).Warn("Schedule is not valid UTF-8, decoded as Latin-1")
		content, encoding = decoded, "latin-1"
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = p.config.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			if parseErr, ok := err.(*csv.ParseError); ok {
				line = parseErr.Line
			}
			return nil, "", errors.ParseError(errors.CodeInvalidFormat, name, line, "", err)
		}
		rows = append(rows, record)
	}

	return rows, encoding, nil
}

// readWorkbook returns the raw cell values of the configured (or first) sheet
func (p *ScheduleParser) readWorkbook(name string, content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, name, 0, "", err).
			WithSuggestion("check the file is a valid .xlsx workbook")
	}
	defer f.Close()

	sheet := p.config.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.ParseError(errors.CodeInvalidFormat, name, 0, "", fmt.Errorf("workbook has no sheets"))
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, name, 0, "", err).
			WithContext("sheet", sheet)
	}
	return rows, nil
}

func (p *ScheduleParser) buildRecords(name string, rows [][]string, serialDates bool) ([]*models.ScheduleRecord, *ScheduleParseStats, error) {
	if len(rows) == 0 {
		return nil, nil, errors.ParseError(errors.CodeInvalidFormat, name, 1, "", fmt.Errorf("schedule export is empty")).
			WithSuggestion("export the schedule with a header row and at least one flight")
	}

	headers := NewHeaderMap(rows[0])
	columns := p.config.Columns

	var missing []string
	for _, column := range columns.Required() {
		if headers.GetColumnIndex(column) < 0 {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, nil, errors.MissingColumnError(name, columns.Required(), headers.Headers)
	}

	stats := &ScheduleParseStats{
		FlightNumbers: columns.FlightNumber != "" && headers.GetColumnIndex(columns.FlightNumber) >= 0,
	}
	records := make([]*models.ScheduleRecord, 0, len(rows)-1)

	for i, row := range rows[1:] {
		stats.RowsRead++
		if isEmptyRecord(row) {
			stats.EmptyRows++
			continue
		}

		rowNumber := i + 2
		date, ok := parseScheduleDate(headers.Value(row, columns.Date), serialDates)
		if !ok {
			stats.InvalidDates++
			p.logger.WithFields(logger.Fields{
				"file":  name,
				"row":   rowNumber,
				"value": headers.Value(row, columns.Date),
			}).Debug("Unparseable schedule date, row will not join")
		}

		record := &models.ScheduleRecord{
			FlightDate:    date,
			Registration:  models.NormalizeRegistration(headers.Value(row, columns.Aircraft)),
			DepartureICAO: strings.ToUpper(headers.Value(row, columns.Departure)),
			ArrivalICAO:   strings.ToUpper(headers.Value(row, columns.Arrival)),
			TripID:        headers.Value(row, columns.Trip),
			RowNumber:     rowNumber,
		}
		if stats.FlightNumbers {
			record.FlightNumber = headers.Value(row, columns.FlightNumber)
		}
		if record.TripID == "" {
			stats.MissingTrips++
		}

		records = append(records, record)
	}
	stats.RowsLoaded = len(records)

	return records, stats, nil
}

// parseScheduleDate reads day-first text dates and, for workbooks, Excel serial dates
func parseScheduleDate(value string, serialDates bool) (string, bool) {
	if date, ok := models.ParseDayFirstDate(value); ok {
		return date, true
	}
	if !serialDates {
		return "", false
	}

	serial, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || serial <= 0 {
		return "", false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return "", false
	}
	return t.Format(models.DateLayout), true
}
