package invoices

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter renders amounts and dates for one locale and currency.
type Formatter struct {
	printer *message.Printer
	symbol  string
	scale   int
}

// NewFormatter builds a formatter. Unknown locales fall back to English, unknown currencies to the raw code.
func NewFormatter(locale, code string) Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	printer := message.NewPrinter(tag)

	symbol := strings.ToUpper(strings.TrimSpace(code))
	scale := 2
	if unit, err := currency.ParseISO(symbol); err == nil {
		symbol = printer.Sprint(currency.Symbol(unit))
		scale, _ = currency.Standard.Rounding(unit)
	}
	return Formatter{printer: printer, symbol: symbol, scale: scale}
}

// Money formats an amount given in minor units, for example 1234567 as "US$ 12.345,67" in es-AR.
func (f Formatter) Money(minor int64) string {
	major, _ := decimal.New(minor, int32(-f.scale)).Float64()
	return f.symbol + " " + f.printer.Sprint(number.Decimal(major, number.Scale(f.scale)))
}

// Percent formats a rate such as 0.21 as "21%".
func (f Formatter) Percent(rate decimal.Decimal) string {
	return rate.Shift(2).Round(2).String() + "%"
}

// Date formats a timestamp as DD/MM/YYYY.
func (f Formatter) Date(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format("02/01/2006")
}
