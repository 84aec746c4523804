package llm

// Field keys in the model's JSON response.
const (
	KeyStore         = "store"
	KeyDate          = "date"
	KeyAmount        = "amount"
	KeyPaymentMethod = "paymentMethod"
	KeyCategory      = "category"
	KeyDescription   = "description"
)

// BuildReceiptJSONSchema returns the six-field schema. Every key is required and
// nothing else is allowed, which is what strict structured outputs demand; the
// same schema validates responses locally.
func BuildReceiptJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			KeyStore:         map[string]any{"type": "string"},
			KeyDate:          map[string]any{"type": "string"},
			KeyAmount:        map[string]any{"type": "number"},
			KeyPaymentMethod: map[string]any{"type": "string"},
			KeyCategory:      map[string]any{"type": "string"},
			KeyDescription:   map[string]any{"type": "string"},
		},
		"required": []string{KeyStore, KeyDate, KeyAmount, KeyPaymentMethod, KeyCategory, KeyDescription},
	}
}
