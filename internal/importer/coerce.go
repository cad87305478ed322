package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"site-registry/internal/models"
	"site-registry/internal/tabular"
)

// DefaultDateLayouts are tried in order; the first layout that parses wins
var DefaultDateLayouts = []string{"2006-1-2", "2/1/2006", "1/2/2006"}

// ParseNumber reads a float from a cleaned cell. A null cell gives (nil, true);
// anything unparsable, NaN or infinite gives (nil, false) so the caller can
// fall back to "no value".
func ParseNumber(c tabular.Cell) (*float64, bool) {
	switch c.Kind() {
	case tabular.KindNull:
		return nil, true
	case tabular.KindTime:
		return nil, false
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(c.String()), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return &v, true
}

// ValidateCoordinates coerces both cells and checks their ranges. Absent or
// unparsable coordinates come back nil without error.
func ValidateCoordinates(lat, lon tabular.Cell) (*float64, *float64, error) {
	latitude, _ := ParseNumber(lat)
	longitude, _ := ParseNumber(lon)

	if err := models.ValidateCoordinates(latitude, longitude); err != nil {
		return nil, nil, err
	}
	return latitude, longitude, nil
}

// ParseDate returns native dates unchanged and parses text with the given
// layouts in order. A null cell gives (nil, nil).
func ParseDate(c tabular.Cell, layouts []string) (*time.Time, error) {
	switch c.Kind() {
	case tabular.KindNull:
		return nil, nil
	case tabular.KindTime:
		t, _ := c.TimeValue()
		return &t, nil
	}

	value := strings.TrimSpace(c.String())
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}

	return nil, &models.ValidationError{
		Field:   "date",
		Value:   value,
		Message: fmt.Sprintf("invalid date format: %s", value),
	}
}

var flagValues = map[string]bool{
	"oui": true, "yes": true, "true": true, "1": true,
	"non": false, "no": false, "false": false, "": false, "0": false,
}

// ParseFlag maps yes/no tokens (French or English) to a bool. Unknown values
// map to false with recognized=false.
func ParseFlag(c tabular.Cell) (value bool, recognized bool) {
	switch c.Kind() {
	case tabular.KindNull:
		return false, true
	case tabular.KindTime:
		return false, false
	}

	token := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(c.String(), "\u00a0", "")))
	value, recognized = flagValues[token]
	return value, recognized
}

// SplitCodes splits a technologies cell on commas and semicolons, normalizes
// each code and drops blanks and repeats.
func SplitCodes(c tabular.Cell) []string {
	if c.Kind() != tabular.KindText {
		return nil
	}

	parts := strings.FieldsFunc(c.String(), func(r rune) bool { return r == ',' || r == ';' })
	codes := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		code := models.NormalizeTechnologyCode(part)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes
}
