package tabular

import "time"

// Kind identifies what a Cell holds
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTime:
		return "time"
	default:
		return "null"
	}
}

// Cell is a single spreadsheet value: nothing, raw text, or a native date
type Cell struct {
	kind Kind
	text string
	at   time.Time
}

// Null returns an empty cell
func Null() Cell { return Cell{} }

// Text returns a cell holding raw text. Empty text is still a text cell;
// cleaning decides whether it counts as missing.
func Text(s string) Cell { return Cell{kind: KindText, text: s} }

// Time returns a cell holding a date stored natively by the spreadsheet
func Time(t time.Time) Cell { return Cell{kind: KindTime, at: t} }

func (c Cell) Kind() Kind { return c.kind }
func (c Cell) IsNull() bool { return c.kind == KindNull }

// TimeValue returns the native date and true for KindTime cells
func (c Cell) TimeValue() (time.Time, bool) {
	return c.at, c.kind == KindTime
}

// String returns the text of a text cell, an ISO date for a time cell and "" for null
func (c Cell) String() string {
	switch c.kind {
	case KindText:
		return c.text
	case KindTime:
		if c.at.Hour() == 0 && c.at.Minute() == 0 && c.at.Second() == 0 {
			return c.at.Format("2006-01-02")
		}
		return c.at.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}
