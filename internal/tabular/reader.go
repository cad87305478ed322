// Package tabular turns uploaded spreadsheets (xlsx or csv) into a header row
// and data rows of Cells.
package tabular

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format is a supported input file format
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither xlsx nor csv
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmpty is returned when the file has no header row
	ErrEmpty = errors.New("file has no header row")
)

var zipMagic = []byte("PK\x03\x04")

// Options tunes how a file is read
type Options struct {
	// Sheet selects the workbook sheet; empty means the first sheet
	Sheet string
}

// Row is one data row. Number is its 1-based position below the header row,
// counted over every row of the file including skipped blank ones.
type Row struct {
	Number int
	Cells  []Cell
}

// Table holds the raw headers in file order and the non-blank data rows
type Table struct {
	Headers []string
	Rows    []Row
}

// DetectFormat picks the format from the file extension, falling back to the
// leading bytes when the extension says nothing.
func DetectFormat(filename string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	case "":
		if bytes.HasPrefix(head, zipMagic) {
			return FormatXLSX, nil
		}
		if len(head) > 0 {
			return FormatCSV, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
}

// Read parses the whole file before returning, so a corrupt file never
// yields a partial table.
func Read(r io.Reader, filename string, opts Options) (*Table, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	format, err := DetectFormat(filename, head)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatXLSX:
		return ReadXLSX(br, opts)
	default:
		return ReadCSV(br)
	}
}

// build turns raw rows (first one = headers) into a Table
func build(records [][]Cell) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	headerCells := records[0]
	headers := make([]string, len(headerCells))
	for i, c := range headerCells {
		headers[i] = c.String()
	}
	if len(headers) == 0 {
		return nil, ErrEmpty
	}

	table := &Table{Headers: headers, Rows: make([]Row, 0, len(records)-1)}
	for i, record := range records[1:] {
		if isBlank(record) {
			continue
		}

		cells := make([]Cell, len(headers))
		copy(cells, record)
		table.Rows = append(table.Rows, Row{Number: i + 1, Cells: cells})
	}

	return table, nil
}

func isBlank(record []Cell) bool {
	for _, c := range record {
		if c.Kind() == KindTime {
			return false
		}
		if c.Kind() == KindText && strings.TrimSpace(c.String()) != "" {
			return false
		}
	}
	return true
}
