package reporter

import (
	"fmt"
	"io"
	"unicode/utf8"

	"airspace-charge-auditor/internal/models"
	"airspace-charge-auditor/internal/reconciler"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the workbook export
const (
	SheetMain      = "Main Report"
	SheetUnmatched = "Unmatched Investigation"
)

const (
	fillMatched   = "d4edda"
	fillUnmatched = "f8d7da"

	amountColumn   = 6 // 1-based position of Amount
	maxColumnWidth = 80
)

type workbookStyles struct {
	header          int
	matched         int
	unmatched       int
	matchedAmount   int
	unmatchedAmount int
}

// generateXLSXReport writes the workbook to writer
func (rg *ReportGenerator) generateXLSXReport(result *reconciler.AuditResult, writer io.Writer) error {
	f, err := BuildWorkbook(result)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// BuildWorkbook lays the audit result out as a two-sheet workbook. The
// investigation sheet is always present, empty apart from its header when
// every charge matched.
func BuildWorkbook(result *reconciler.AuditResult) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName(f.GetSheetName(0), SheetMain); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name main sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetUnmatched); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create investigation sheet: %w", err)
	}

	styles, err := newWorkbookStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	mainRows := make([][]string, len(result.Records))
	for i, record := range result.Records {
		mainRows[i] = exportRow(record)
	}
	if err := writeSheet(f, SheetMain, MainColumns, mainRows, result.Records, styles); err != nil {
		f.Close()
		return nil, err
	}

	unmatchedRows := make([][]string, len(result.Unmatched))
	for i, record := range result.Unmatched {
		unmatchedRows[i] = unmatchedRow(record)
	}
	if err := writeSheet(f, SheetUnmatched, UnmatchedColumns, unmatchedRows, result.Unmatched, styles); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

func newWorkbookStyles(f *excelize.File) (*workbookStyles, error) {
	fill := func(color string) excelize.Fill {
		return excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}
	}

	definitions := []*excelize.Style{
		{Font: &excelize.Font{Bold: true}},
		{Fill: fill(fillMatched)},
		{Fill: fill(fillUnmatched)},
		{Fill: fill(fillMatched), NumFmt: 2},
		{Fill: fill(fillUnmatched), NumFmt: 2},
	}

	ids := make([]int, len(definitions))
	for i, definition := range definitions {
		id, err := f.NewStyle(definition)
		if err != nil {
			return nil, fmt.Errorf("failed to create workbook style: %w", err)
		}
		ids[i] = id
	}

	return &workbookStyles{
		header:          ids[0],
		matched:         ids[1],
		unmatched:       ids[2],
		matchedAmount:   ids[3],
		unmatchedAmount: ids[4],
	}, nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]string, records []*models.AuditRecord, styles *workbookStyles) error {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = utf8.RuneCountInString(header)
	}

	headerRow := make([]interface{}, len(headers))
	for i, header := range headers {
		headerRow[i] = header
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", styles.header); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}

	for i, row := range rows {
		rowNumber := i + 2
		record := records[i]

		values := make([]interface{}, len(row))
		for j, value := range row {
			values[j] = value
			if n := utf8.RuneCountInString(value); n > widths[j] {
				widths[j] = n
			}
		}
		values[amountColumn-1] = record.Charge.Amount.InexactFloat64()

		cell, err := excelize.CoordinatesToCellName(1, rowNumber)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, rowNumber, err)
		}

		rowStyle, amountStyle := styles.unmatched, styles.unmatchedAmount
		if record.Match.IsMatched() {
			rowStyle, amountStyle = styles.matched, styles.matchedAmount
		}
		if err := f.SetCellStyle(sheet, cell, fmt.Sprintf("%s%d", lastCol, rowNumber), rowStyle); err != nil {
			return err
		}
		amountCell, err := excelize.CoordinatesToCellName(amountColumn, rowNumber)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, amountCell, amountCell, amountStyle); err != nil {
			return err
		}
	}

	for i, width := range widths {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if width+2 > maxColumnWidth {
			width = maxColumnWidth - 2
		}
		if err := f.SetColWidth(sheet, name, name, float64(width+2)); err != nil {
			return fmt.Errorf("failed to size %s column %s: %w", sheet, name, err)
		}
	}

	return nil
}
