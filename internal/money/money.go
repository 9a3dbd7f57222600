// Package money provides the monetary and calendar primitives shared by the
// consignment accounting core. Amounts are decimal (shopspring/decimal);
// float64 is never used for money.
package money

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var hundred = decimal.NewFromInt(100)

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// Percent applies pct (expressed as 0-100) to value, rounded to cents.
func Percent(value, pct decimal.Decimal) decimal.Decimal {
	return value.Mul(pct).Div(hundred).Round(2)
}

// FormatBRL renders an amount as Brazilian currency, e.g. "R$ 1.234,56".
func FormatBRL(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return ptBR.Sprintf("R$ %.2f", f)
}

// AddDays shifts a date by n calendar days. n may be negative.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// DaysBetween returns the calendar-day distance from a to b, rounding any
// partial day up. The result is negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	hours := b.Sub(a).Hours()
	return int(math.Ceil(hours / 24))
}
