// Package mail retrieves supplier invoice emails and their PDF attachments
// from a Gmail mailbox.
package mail

import (
	"fmt"
	netmail "net/mail"
	"strings"
	"time"
)

// Attachment is a downloaded email attachment.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Data     []byte `json:"-"`
}

// Message is an email with its PDF attachments.
type Message struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"thread_id"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	ReceivedAt  time.Time    `json:"received_at"`
	Attachments []Attachment `json:"attachments"`
}

// AttachmentRef is the stable reference of an attachment, used as the AP
// record's source_email_ref.
func (m Message) AttachmentRef(a Attachment) string {
	return m.ID + "/" + a.ID
}

// Query selects messages to retrieve.
type Query struct {
	// Text is raw Gmail search syntax, e.g. `has:attachment filename:pdf`.
	Text  string
	Label string
	After time.Time
	// MaxResults caps the number of messages returned across all pages.
	MaxResults int64
}

// String renders the query in Gmail search syntax.
func (q Query) String() string {
	var parts []string
	if t := strings.TrimSpace(q.Text); t != "" {
		parts = append(parts, t)
	}
	if l := strings.TrimSpace(q.Label); l != "" {
		if strings.ContainsAny(l, " \t") {
			l = `"` + l + `"`
		}
		parts = append(parts, "label:"+l)
	}
	if !q.After.IsZero() {
		parts = append(parts, "after:"+q.After.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

// AnyOf builds a Gmail OR-group of quoted phrases, skipping blanks and duplicates.
func AnyOf(phrases ...string) string {
	seen := make(map[string]bool, len(phrases))
	var quoted []string
	for _, p := range phrases {
		p = strings.TrimSpace(strings.ReplaceAll(p, `"`, ""))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		quoted = append(quoted, fmt.Sprintf("%q", p))
	}
	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return quoted[0]
	default:
		return "{" + strings.Join(quoted, " ") + "}"
	}
}

// ParseFrom splits a From header into display name and address. Headers that do
// not parse as RFC 5322 addresses are returned whole as the address.
func ParseFrom(header string) (name, address string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ""
	}
	addr, err := netmail.ParseAddress(header)
	if err != nil {
		if i := strings.Index(header, "<"); i > 0 {
			if j := strings.Index(header[i:], ">"); j > 0 {
				return strings.Trim(strings.TrimSpace(header[:i]), `"`), header[i+1 : i+j]
			}
		}
		return "", header
	}
	return addr.Name, addr.Address
}
