package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/api/gmail/v1"
)

const (
	gmailUser   = "me"
	labelUnread = "UNREAD"
)

var _ Mailbox = (*GmailMailbox)(nil)

// GmailMailbox implements Mailbox over the Gmail REST API.
type GmailMailbox struct {
	svc    *gmail.Service
	logger *slog.Logger
}

func NewGmailMailbox(svc *gmail.Service, logger *slog.Logger) *GmailMailbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &GmailMailbox{svc: svc, logger: logger}
}

func (g *GmailMailbox) Search(ctx context.Context, query string, maxResults int64) ([]string, error) {
	resp, err := g.svc.Users.Messages.List(gmailUser).Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	g.logger.Debug("gmail search", "query", query, "results", len(ids))
	return ids, nil
}

func (g *GmailMailbox) GetMessage(ctx context.Context, id string) (*Message, error) {
	m, err := g.svc.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail get %s: %w", id, err)
	}
	out := &Message{ID: m.Id}
	if m.Payload == nil {
		return out, nil
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, "Subject") {
			out.Subject = h.Value
			break
		}
	}
	walkParts(m.Payload, func(p *gmail.MessagePart) {
		part := Part{PartID: p.PartId, Filename: p.Filename, MimeType: p.MimeType}
		if p.Body != nil {
			part.AttachmentID = p.Body.AttachmentId
			part.Size = p.Body.Size
			if part.AttachmentID == "" && p.Body.Data != "" {
				if data, err := decodeBase64URL(p.Body.Data); err == nil {
					part.Data = data
				}
			}
		}
		out.Parts = append(out.Parts, part)
	})
	return out, nil
}

func (g *GmailMailbox) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	body, err := g.svc.Users.Messages.Attachments.Get(gmailUser, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail attachment %s: %w", attachmentID, err)
	}
	data, err := decodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment %s: %w", attachmentID, err)
	}
	return data, nil
}

// MarkRead removes the UNREAD label.
func (g *GmailMailbox) MarkRead(ctx context.Context, messageID string) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{labelUnread}}
	if _, err := g.svc.Users.Messages.Modify(gmailUser, messageID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail modify %s: %w", messageID, err)
	}
	return nil
}

// walkParts visits leaf parts depth-first in document order.
func walkParts(p *gmail.MessagePart, visit func(*gmail.MessagePart)) {
	if p == nil {
		return
	}
	if len(p.Parts) == 0 {
		visit(p)
		return
	}
	for _, child := range p.Parts {
		walkParts(child, visit)
	}
}

// decodeBase64URL accepts Gmail's URL-safe alphabet with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
