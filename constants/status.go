package constants

// IngestStatus is the outcome recorded on every ingest_log row.
type IngestStatus string

// Stable values (store these exact strings in DB).
const (
	IngestSuccess    IngestStatus = "success"
	IngestPartial    IngestStatus = "partial"
	IngestNotReceipt IngestStatus = "not_receipt"
	IngestError      IngestStatus = "error"
)

var allStatuses = []IngestStatus{IngestSuccess, IngestPartial, IngestNotReceipt, IngestError}

// Valid reports whether s is one of the stored ingest statuses.
func (s IngestStatus) Valid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ProviderGoogle is the only mail provider the poller reads.
const ProviderGoogle = "google"
