package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"invoice-reconciler/internal/logger"

	"github.com/rs/zerolog"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Searcher finds messages with PDF attachments.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Message, error)
}

// Client reads a Gmail mailbox.
type Client struct {
	svc  *gmail.Service
	user string
	log  zerolog.Logger
}

// NewClient authenticates with cfg and returns a mailbox client.
func NewClient(ctx context.Context, cfg AuthConfig) (*Client, error) {
	ts, err := TokenSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewClientWithService(svc, cfg.User), nil
}

// NewClientWithService wraps an already configured Gmail service.
func NewClientWithService(svc *gmail.Service, user string) *Client {
	if user == "" {
		user = "me"
	}
	return &Client{svc: svc, user: user, log: logger.WithComponent("mail")}
}

var errEnoughResults = errors.New("enough results")

// Search lists matching messages newest first and downloads their PDF
// attachments. Messages without a PDF are dropped.
func (c *Client) Search(ctx context.Context, q Query) ([]Message, error) {
	query := q.String()
	limit := q.MaxResults
	if limit <= 0 {
		limit = 50
	}

	var ids []string
	call := c.svc.Users.Messages.List(c.user).Q(query).MaxResults(min(limit, 500))
	err := call.Pages(ctx, func(page *gmail.ListMessagesResponse) error {
		for _, m := range page.Messages {
			ids = append(ids, m.Id)
			if int64(len(ids)) >= limit {
				return errEnoughResults
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnoughResults) {
		return nil, fmt.Errorf("list messages (q=%q): %w", query, err)
	}
	c.log.Debug().Str("query", query).Int("found", len(ids)).Msg("mailbox search")

	messages := make([]Message, 0, len(ids))
	for _, id := range ids {
		msg, err := c.fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(msg.Attachments) == 0 {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (c *Client) fetch(ctx context.Context, id string) (Message, error) {
	raw, err := c.svc.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return Message{}, fmt.Errorf("get message %s: %w", id, err)
	}

	msg := Message{ID: raw.Id, ThreadID: raw.ThreadId}
	if raw.Payload == nil {
		return msg, nil
	}
	for _, h := range raw.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			msg.Subject = h.Value
		case "from":
			msg.From = h.Value
		case "date":
			if t, err := netmail.ParseDate(h.Value); err == nil {
				msg.ReceivedAt = t
			}
		}
	}
	if msg.ReceivedAt.IsZero() && raw.InternalDate > 0 {
		msg.ReceivedAt = time.UnixMilli(raw.InternalDate).UTC()
	}

	for _, part := range pdfParts(raw.Payload) {
		att, err := c.download(ctx, raw.Id, part)
		if err != nil {
			return Message{}, err
		}
		msg.Attachments = append(msg.Attachments, att)
	}
	return msg, nil
}

func (c *Client) download(ctx context.Context, messageID string, part *gmail.MessagePart) (Attachment, error) {
	att := Attachment{Filename: part.Filename, MimeType: part.MimeType}
	if part.Body == nil {
		return att, fmt.Errorf("attachment %q of message %s has no body", part.Filename, messageID)
	}
	att.ID = part.Body.AttachmentId
	if att.ID == "" {
		att.ID = part.PartId
	}

	data := part.Body.Data
	if data == "" && part.Body.AttachmentId != "" {
		body, err := c.svc.Users.Messages.Attachments.Get(c.user, messageID, part.Body.AttachmentId).Context(ctx).Do()
		if err != nil {
			return att, fmt.Errorf("get attachment %s/%s: %w", messageID, part.Body.AttachmentId, err)
		}
		data = body.Data
	}

	decoded, err := decodeBody(data)
	if err != nil {
		return att, fmt.Errorf("decode attachment %q of message %s: %w", part.Filename, messageID, err)
	}
	att.Data = decoded
	att.Size = int64(len(decoded))
	return att, nil
}

// pdfParts walks the MIME tree depth-first and returns PDF attachment parts.
func pdfParts(p *gmail.MessagePart) []*gmail.MessagePart {
	if p == nil {
		return nil
	}
	var out []*gmail.MessagePart
	if p.Filename != "" && isPDF(p.Filename, p.MimeType) {
		out = append(out, p)
	}
	for _, child := range p.Parts {
		out = append(out, pdfParts(child)...)
	}
	return out
}

func isPDF(filename, mimeType string) bool {
	return strings.EqualFold(mimeType, "application/pdf") || strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

// Gmail returns URL-safe base64, with or without padding depending on the field.
func decodeBody(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}
