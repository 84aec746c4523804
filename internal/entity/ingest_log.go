package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/inbox-ledger/constants"
)

// IngestLogEntry is the immutable audit record for one processed page or
// one failure. FileName and LedgerID are nil when not applicable.
type IngestLogEntry struct {
	ID        uuid.UUID              `json:"id"`
	Status    constants.IngestStatus `json:"status"`
	Message   string                 `json:"message"`
	FileName  *string                `json:"file_name,omitempty"`
	LedgerID  *uuid.UUID             `json:"ledger_id,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
