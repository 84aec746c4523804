package llm

import (
	"context"

	"github.com/joseph-ayodele/inbox-ledger/internal/receipt"
)

// FieldExtractor turns one rendered page into normalized receipt fields.
// Garbled or refused model output yields all-sentinel fields, not an error;
// only transport failures are returned.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, image []byte) (receipt.Fields, error)
}
