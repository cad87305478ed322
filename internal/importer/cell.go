package importer

import (
	"strings"

	"site-registry/internal/tabular"
)

// Tokens spreadsheet exports use for a missing value
var missingTokens = map[string]struct{}{
	"#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {},
	"N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {},
	"n/a": {}, "nan": {}, "null": {},
}

// CleanCell turns missing-value markers and blank text into null cells and
// collapses whitespace in text. Native dates pass through untouched.
func CleanCell(c tabular.Cell) tabular.Cell {
	if c.Kind() != tabular.KindText {
		return c
	}

	cleaned := cleanText(c.String())
	if cleaned == "" || isMissingToken(cleaned) {
		return tabular.Null()
	}
	return tabular.Text(cleaned)
}

// cleanText drops zero-width characters and collapses every run of Unicode
// whitespace, non-breaking spaces included, to a single space.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func isMissingToken(s string) bool {
	_, ok := missingTokens[s]
	return ok
}

// Record is a cleaned data row keyed by canonical column name
type Record map[string]tabular.Cell

// NewRecord cleans the cells of a row and keys them by column. Columns that
// are "" (unusable headers) are dropped.
func NewRecord(columns []string, cells []tabular.Cell) Record {
	record := make(Record, len(columns))
	for i, column := range columns {
		if column == "" {
			continue
		}
		if i < len(cells) {
			record[column] = CleanCell(cells[i])
		} else {
			record[column] = tabular.Null()
		}
	}
	return record
}

// Cell returns the value of a column, null when the column is absent
func (r Record) Cell(column string) tabular.Cell {
	if c, ok := r[column]; ok {
		return c
	}
	return tabular.Null()
}

// Has reports whether the file carried the column at all
func (r Record) Has(column string) bool {
	_, ok := r[column]
	return ok
}
