// Package ai turns invoice PDF attachments into structured invoice candidates.
package ai

import (
	"context"

	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/mail"
)

// Extractor reads one PDF attachment of a message.
//
// Failures that concern only the attachment (not an invoice, unreadable PDF,
// missing total) are returned as *ExtractionError; see IsSkippable.
type Extractor interface {
	Extract(ctx context.Context, msg mail.Message, att mail.Attachment) (core.RawInvoiceCandidate, error)
}

// MaxDocumentSizeBytes is the largest attachment sent for extraction (20MB).
const MaxDocumentSizeBytes = 20 * 1024 * 1024

func checkDocument(op, ref string, data []byte) error {
	if len(data) > MaxDocumentSizeBytes {
		return wrapErr(op, ref, ErrDocumentTooLarge, "")
	}
	if len(data) < 4 || string(data[:4]) != "%PDF" {
		return wrapErr(op, ref, ErrInvalidPDF, "missing PDF header")
	}
	return nil
}
