package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInvoice means the document was read but is not a supplier invoice
	// (statement, remittance advice, marketing). Callers skip it.
	ErrNotInvoice = errors.New("document is not an invoice")

	// ErrInvalidPDF is returned when the attachment is not a readable PDF.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrNoText is returned when a PDF has no extractable text layer.
	ErrNoText = errors.New("pdf has no text layer")

	// ErrEmptyResponse is returned when the model produced no output.
	ErrEmptyResponse = errors.New("empty extraction response")

	// ErrMissingTotal is returned when no invoice total could be read.
	ErrMissingTotal = errors.New("invoice total missing or unreadable")

	// ErrDocumentTooLarge is returned when the attachment exceeds the size limit.
	ErrDocumentTooLarge = errors.New("document exceeds maximum size limit")
)

// ExtractionError wraps an extraction failure with the operation and attachment.
type ExtractionError struct {
	Op      string
	Ref     string
	Err     error
	Details string
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract: %s", e.Op)
	if e.Ref != "" {
		msg += fmt.Sprintf(" [%s]", e.Ref)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %v", msg, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func wrapErr(op, ref string, err error, details string) error {
	return &ExtractionError{Op: op, Ref: ref, Err: err, Details: details}
}

// IsSkippable reports whether an extraction failure concerns only the one
// attachment, so the caller can continue with the remaining candidates.
func IsSkippable(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
