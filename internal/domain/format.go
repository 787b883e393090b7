package domain

import (
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountLocale = language.MustParse("en-IN")

func currencySymbol(c Currency) string {
	if c == INR {
		return "₹"
	}
	return "$"
}

// FormatCurrency renders a whole-number amount with Indian digit grouping,
// e.g. "₹12,34,567" or "$1,500". Non-finite amounts render as zero.
func FormatCurrency(amount float64, c Currency) string {
	if !finite(amount) {
		return currencySymbol(c) + "0"
	}
	r := math.Round(amount)
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	p := message.NewPrinter(amountLocale)
	return currencySymbol(c) + p.Sprintf("%.0f", r)
}

// FormatDate reduces an RFC 3339 timestamp or a plain date to YYYY-MM-DD
// (UTC). Unparseable input yields "".
func FormatDate(s string) string {
	if s == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Format(DateLayout)
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.Format(DateLayout)
	}
	return ""
}
