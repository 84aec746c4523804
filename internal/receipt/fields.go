// Package receipt holds the typed result of a page extraction and the policy
// that decides what kind of record it becomes.
package receipt

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Unknown is the sentinel the extraction prompt asks for when a string is unclear.
const Unknown = "Unknown"

// Text is either a known string or Unknown. The zero value is Unknown.
type Text struct {
	value string
	known bool
}

// KnownText wraps s; blank or "Unknown" (any case) collapse to UnknownText.
func KnownText(s string) Text {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, Unknown) {
		return Text{}
	}
	return Text{value: s, known: true}
}

// UnknownText is the sentinel value.
func UnknownText() Text { return Text{} }

func (t Text) Known() bool { return t.known }

// Value returns the string, or def when unknown.
func (t Text) Value(def string) string {
	if !t.known {
		return def
	}
	return t.value
}

// String renders the value with the "Unknown" sentinel.
func (t Text) String() string { return t.Value(Unknown) }

// Amount is either an extracted amount or Unset. Refunds and credits keep
// their sign; only Positive amounts count as a receipt total.
type Amount struct {
	value decimal.Decimal
	set   bool
}

// KnownAmount wraps d. Zero is the extraction sentinel and stays Unset.
func KnownAmount(d decimal.Decimal) Amount {
	if d.IsZero() {
		return Amount{}
	}
	return Amount{value: d, set: true}
}

// UnsetAmount is the sentinel value.
func UnsetAmount() Amount { return Amount{} }

func (a Amount) Known() bool { return a.set }

// Positive reports whether the amount is a usable receipt total.
func (a Amount) Positive() bool { return a.set && a.value.IsPositive() }

// Value returns the amount or zero when unset.
func (a Amount) Value() decimal.Decimal {
	if !a.set {
		return decimal.Zero
	}
	return a.value
}

func (a Amount) String() string { return a.Value().String() }

// Fields is the normalized six-field result for one page.
type Fields struct {
	Store         Text
	Date          Text
	Amount        Amount
	PaymentMethod Text
	Category      Text
	Description   Text
}

// DateLayout is the only date shape accepted from extraction.
const DateLayout = time.DateOnly

// ParsedDate returns the extracted date, or fallback when the date is unknown
// or not in YYYY-MM-DD form.
func (f Fields) ParsedDate(fallback time.Time) time.Time {
	if !f.Date.Known() {
		return fallback
	}
	t, err := time.Parse(DateLayout, f.Date.Value(""))
	if err != nil {
		return fallback
	}
	return t
}
