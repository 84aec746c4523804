package llm

import (
	"strings"

	"github.com/joseph-ayodele/inbox-ledger/constants"
)

// BuildSystemPrompt is the fixed instruction sent with every page image.
func BuildSystemPrompt() string {
	parts := []string{
		"You are a receipts parser looking at one page of a PDF attached to an email.",
		"Return ONLY a single JSON object with exactly these six keys: store, date, amount, paymentMethod, category, description.",
		"store: the merchant name as printed.",
		"date: the transaction date as YYYY-MM-DD.",
		"amount: the final total paid, as a JSON number without currency symbols.",
		"paymentMethod: how it was paid (e.g. Card, Cash, PayPal).",
		"category: a short spending category (e.g. " + strings.Join(constants.AsStringSlice(), ", ") + "); use another label if none fits.",
		"description: a few words on what was bought.",
		"If any string field is unclear or absent, use \"Unknown\". If the amount is unclear, use 0.",
		"If the page is not a receipt or invoice, return \"Unknown\" for store and date and 0 for amount.",
		"Never invent information that is not visible on the page.",
	}
	return strings.Join(parts, " ")
}

// UserInstruction accompanies the image in the user turn.
const UserInstruction = "Extract the receipt fields from this page. Respond with the JSON object only."
