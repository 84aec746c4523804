// Package mail opens per-user mailbox sessions and exposes the handful of
// mailbox calls the inbox scanner makes.
package mail

import (
	"context"
	"fmt"
	"strings"
)

// Mailbox is the subset of the mail provider the scanner needs.
type Mailbox interface {
	Search(ctx context.Context, query string, maxResults int64) ([]string, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	MarkRead(ctx context.Context, messageID string) error
}

// Message is a fetched message flattened to its leaf parts.
type Message struct {
	ID      string
	Subject string
	Parts   []Part
}

// Part is one MIME leaf. Body bytes are either fetched by AttachmentID or
// carried inline in Data.
type Part struct {
	PartID       string
	Filename     string
	MimeType     string
	AttachmentID string
	Data         []byte
	Size         int64
}

// HasBody reports whether the part's bytes can be obtained.
func (p Part) HasBody() bool {
	return p.AttachmentID != "" || len(p.Data) > 0
}

// DefaultWindow is the recency filter used when none is configured.
const DefaultWindow = "1d"

// BuildQuery selects unread messages with a PDF attachment newer than window
// (Gmail relative syntax such as "1d" or "12h").
func BuildQuery(window string) string {
	window = strings.TrimSpace(window)
	if window == "" {
		window = DefaultWindow
	}
	return fmt.Sprintf("has:attachment filename:pdf newer_than:%s is:unread", window)
}
