package llm

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/inbox-ledger/constants"
	"github.com/joseph-ayodele/inbox-ledger/internal/receipt"
)

// StripCodeFences removes a surrounding ``` or ```json fence, if any.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.Contains(s[:i], "{") {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// ExtractJSONObject returns the span from the first '{' to the last '}'.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodeFields parses model content into Fields. Each key is type-checked on
// its own and falls back to its sentinel, so the result is always complete.
func DecodeFields(content string, logger *slog.Logger) receipt.Fields {
	if logger == nil {
		logger = slog.Default()
	}
	span, ok := ExtractJSONObject(StripCodeFences(content))
	if !ok {
		logger.Warn("llm.extract.no_json_object", "content", truncate(content, 256))
		return receipt.Fields{}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(span)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		logger.Warn("llm.extract.json_parse_failed", "error", err, "content", truncate(span, 256))
		return receipt.Fields{}
	}

	var dropped []string
	text := func(key string) receipt.Text {
		v, present := m[key]
		s, ok := v.(string)
		if !ok {
			if present && v != nil {
				dropped = append(dropped, key)
			}
			return receipt.UnknownText()
		}
		return receipt.KnownText(s)
	}

	f := receipt.Fields{
		Store:         text(KeyStore),
		Date:          text(KeyDate),
		PaymentMethod: text(KeyPaymentMethod),
		Category:      NormalizeCategory(text(KeyCategory)),
		Description:   text(KeyDescription),
	}

	switch v := m[KeyAmount].(type) {
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			f.Amount = receipt.KnownAmount(d)
		} else {
			dropped = append(dropped, KeyAmount)
		}
	case nil:
	default:
		dropped = append(dropped, KeyAmount)
	}

	if len(dropped) > 0 {
		logger.Warn("llm.extract.type_mismatch", "dropped", dropped)
	}
	return f
}

// NormalizeCategory maps exact, synonym and one-typo labels onto the known
// categories and keeps anything else verbatim.
func NormalizeCategory(t receipt.Text) receipt.Text {
	if !t.Known() {
		return t
	}
	if cat, ok := constants.Canonicalize(t.Value("")); ok {
		return receipt.KnownText(string(cat))
	}
	return t
}
