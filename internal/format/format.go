// Package format renders amounts and dates for display. Values stay
// exact decimals everywhere else; formatting happens only at the
// presentation edge.
package format

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const displayDateLayout = "02/01/2006"

// Formatter holds the locale printer so repeated calls share one
// configuration and the same input always yields the same string.
type Formatter struct {
	printer *message.Printer
}

func New(locale string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, err
	}
	return &Formatter{printer: message.NewPrinter(tag)}, nil
}

// Currency renders a COP amount: "$ 1.234.567". Whole amounts carry no
// fraction digits, matching the invoices the store hands out.
func (f *Formatter) Currency(v decimal.Decimal) string {
	if v.Equal(v.Truncate(0)) {
		return f.printer.Sprintf("$ %v", number.Decimal(v.IntPart()))
	}
	fv, _ := v.Float64()
	return f.printer.Sprintf("$ %v", number.Decimal(fv, number.Scale(2)))
}

// Date renders a timestamp as dd/mm/yyyy.
func (f *Formatter) Date(t time.Time) string {
	return t.Format(displayDateLayout)
}

// DateString re-renders a backend date string (RFC3339 or plain
// yyyy-mm-dd) as dd/mm/yyyy. Unparseable input is returned as-is
// rather than dropped.
func (f *Formatter) DateString(s string) string {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return f.Date(t)
		}
	}
	return s
}
