package tabular

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads the selected sheet (first sheet by default) of a workbook.
// Numeric cells carrying a date number format are returned as Time cells.
func ReadXLSX(r io.Reader, opts Options) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmpty
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found in workbook", sheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	d := &dateDetector{file: f, sheet: sheet, styles: make(map[int]bool)}
	records := make([][]Cell, len(rows))
	for i, row := range rows {
		record := make([]Cell, len(row))
		for j, raw := range row {
			record[j] = d.cell(i, j, raw, date1904)
		}
		records[i] = record
	}

	return build(records)
}

// dateDetector caches which style ids carry a date format
type dateDetector struct {
	file   *excelize.File
	sheet  string
	styles map[int]bool
}

func (d *dateDetector) cell(row, col int, raw string, date1904 bool) Cell {
	// Header row and empty cells never hold dates worth converting.
	if row == 0 || raw == "" {
		return Text(raw)
	}

	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Text(raw)
	}

	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return Text(raw)
	}
	styleID, err := d.file.GetCellStyle(d.sheet, name)
	if err != nil || !d.isDateStyle(styleID) {
		return Text(raw)
	}

	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return Text(raw)
	}
	return Time(t)
}

func (d *dateDetector) isDateStyle(styleID int) bool {
	if styleID == 0 {
		return false
	}
	if isDate, ok := d.styles[styleID]; ok {
		return isDate
	}

	isDate := false
	if style, err := d.file.GetStyle(styleID); err == nil && style != nil {
		isDate = isBuiltInDateFormat(style.NumFmt)
		if !isDate && style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		}
	}
	d.styles[styleID] = isDate
	return isDate
}

// isBuiltInDateFormat reports whether a built-in number format id renders a
// calendar date (time-only formats are excluded).
func isBuiltInDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode looks for year or day tokens in a custom format code,
// ignoring quoted literals, escaped characters and bracketed sections.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote, inBracket, escaped := false, false, false
	for _, r := range code {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case inQuote:
			inQuote = r != '"'
		case r == '"':
			inQuote = true
		case inBracket:
			inBracket = r != ']'
		case r == '[':
			inBracket = true
		default:
			b.WriteRune(r)
		}
	}

	lower := strings.ToLower(b.String())
	return strings.ContainsAny(lower, "yd")
}
