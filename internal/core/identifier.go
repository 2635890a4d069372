package core

import (
	"strings"
	"unicode"
)

// NormalizedIdentifier pairs an order or invoice number with its canonical form.
type NormalizedIdentifier struct {
	Raw       string `json:"raw"`
	Canonical string `json:"canonical"`
}

// Normalize strips every character that is not a letter or digit and upper-cases
// the rest. It never fails: punctuation-only input yields an empty canonical form.
func Normalize(raw string) NormalizedIdentifier {
	return NormalizedIdentifier{Raw: raw, Canonical: canonical(raw)}
}

func canonical(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// IsEmpty reports whether the canonical form is degenerate.
func (n NormalizedIdentifier) IsEmpty() bool {
	return n.Canonical == ""
}

// Equal compares canonical forms. Empty canonical forms never compare equal,
// not even to each other.
func (n NormalizedIdentifier) Equal(other NormalizedIdentifier) bool {
	return !n.IsEmpty() && n.Canonical == other.Canonical
}

// IdempotencyKey identifies an AP record by its (order, invoice) pair in canonical form.
type IdempotencyKey struct {
	OrderKey   string `json:"order_key"`
	InvoiceKey string `json:"invoice_key"`
}

// NewIdempotencyKey builds the key for an order/invoice pair. When the invoice
// number is missing the attachment reference identifies the invoice instead.
func NewIdempotencyKey(orderNumber, invoiceNumber, attachmentRef string) IdempotencyKey {
	invoiceKey := canonical(invoiceNumber)
	if invoiceKey == "" {
		invoiceKey = "REF" + canonical(attachmentRef)
	}
	return IdempotencyKey{OrderKey: canonical(orderNumber), InvoiceKey: invoiceKey}
}

func (k IdempotencyKey) String() string {
	return k.OrderKey + "/" + k.InvoiceKey
}

// Valid reports whether both halves of the key carry identifying characters.
func (k IdempotencyKey) Valid() bool {
	return k.OrderKey != "" && k.InvoiceKey != "" && k.InvoiceKey != "REF"
}
