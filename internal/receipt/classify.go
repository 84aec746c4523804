package receipt

import "strings"

// Outcome is the classification of one extracted page.
type Outcome int

const (
	NotReceipt Outcome = iota
	Partial
	Success
)

func (o Outcome) String() string {
	switch o {
	case NotReceipt:
		return "not_receipt"
	case Partial:
		return "partial"
	case Success:
		return "success"
	default:
		return "unknown"
	}
}

// Classify looks only at store, date and amount. Payment method, category and
// description are informational.
func Classify(f Fields) Outcome {
	switch n := len(Missing(f)); n {
	case 0:
		return Success
	case 3:
		return NotReceipt
	default:
		return Partial
	}
}

// Missing names the primary signals that were not extracted, in store/date/amount order.
func Missing(f Fields) []string {
	var out []string
	if !f.Store.Known() {
		out = append(out, "store")
	}
	if !f.Date.Known() {
		out = append(out, "date")
	}
	if !f.Amount.Positive() {
		out = append(out, "amount")
	}
	return out
}

// DescribeMissing renders Missing for an ingest log message, e.g. "date, amount".
func DescribeMissing(f Fields) string {
	return strings.Join(Missing(f), ", ")
}
