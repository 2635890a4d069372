package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine is a single product line on a purchase or consignment order.
type OrderLine struct {
	SKU         string          `json:"sku"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"qty"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// Order is a read-only snapshot of an inventory order. The engine never mutates it.
type Order struct {
	OrderNumber   string           `json:"order_number"`
	OrderDate     time.Time        `json:"order_date"`
	SupplierName  string           `json:"supplier_name"`
	ExpectedTotal *decimal.Decimal `json:"expected_total,omitempty"`
	Lines         []OrderLine      `json:"line_items"`
}

// SKUs returns the non-empty SKUs of the order lines, in line order.
func (o Order) SKUs() []string {
	skus := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if l.SKU != "" {
			skus = append(skus, l.SKU)
		}
	}
	return skus
}

// InvoiceLine is a description/amount pair as printed on an invoice.
type InvoiceLine struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// RawInvoiceCandidate is an invoice record extracted from an email attachment,
// not yet confirmed to belong to any order.
//
// OrderReference carries the purchase-order number printed on the invoice when
// extraction found one. SupplierName is the extracted vendor name; when empty the
// display name of EmailFrom stands in.
type RawInvoiceCandidate struct {
	EmailSubject    string          `json:"email_subject"`
	EmailFrom       string          `json:"email_from"`
	EmailReceivedAt time.Time       `json:"email_received_at"`
	InvoiceNumber   string          `json:"invoice_number,omitempty"`
	OrderReference  string          `json:"order_reference,omitempty"`
	SupplierName    string          `json:"supplier_name,omitempty"`
	InvoiceDate     *time.Time      `json:"invoice_date,omitempty"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	Total           decimal.Decimal `json:"total"`
	LineItems       []InvoiceLine   `json:"line_items"`
	ChargeLines     []InvoiceLine   `json:"charge_lines"`
	AttachmentRef   string          `json:"attachment_ref"`
}

// MatchReason records which identifier comparison contributed to a match.
type MatchReason string

const (
	ReasonOrderNumberExact      MatchReason = "ORDER_NUMBER_EXACT"
	ReasonOrderNumberNormalized MatchReason = "ORDER_NUMBER_NORMALIZED"
	ReasonSupplierExact         MatchReason = "SUPPLIER_EXACT"
	ReasonSupplierPartial       MatchReason = "SUPPLIER_PARTIAL"
)

// MatchResult links a candidate invoice to an order with a confidence grade.
type MatchResult struct {
	OrderNumber string              `json:"order_number"`
	Candidate   RawInvoiceCandidate `json:"candidate"`
	Confidence  Confidence          `json:"confidence"`
	Reasons     []MatchReason       `json:"match_reasons"`
}

// HasReason reports whether r is among the match reasons.
func (m MatchResult) HasReason(r MatchReason) bool {
	for _, have := range m.Reasons {
		if have == r {
			return true
		}
	}
	return false
}

// APStatus is the lifecycle state of an AP record.
type APStatus string

const (
	APStatusDraft   APStatus = "DRAFT"
	APStatusCreated APStatus = "CREATED"
	APStatusFailed  APStatus = "FAILED"
)

// LinePosting is one account-coded amount on an AP record. AccountCode is empty
// for UNCLASSIFIED amounts, which must be coded manually downstream.
type LinePosting struct {
	Category    ChargeCategory  `json:"category"`
	AccountCode string          `json:"account_code"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// APRecord is a structured accounts-payable posting derived from a matched invoice.
type APRecord struct {
	ID             int             `json:"-"`
	PublicID       string          `json:"id,omitempty"`
	OrderNumber    string          `json:"order_number"`
	InvoiceNumber  string          `json:"invoice_number"`
	SupplierName   string          `json:"supplier_name"`
	InvoiceDate    *time.Time      `json:"invoice_date,omitempty"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	Currency       string          `json:"currency,omitempty"`
	Total          decimal.Decimal `json:"total"`
	Confidence     Confidence      `json:"confidence"`
	LinePostings   []LinePosting   `json:"line_postings"`
	Status         APStatus        `json:"status"`
	FailureReason  BuildFailure    `json:"failure_reason,omitempty"`
	SourceEmailRef string          `json:"source_email_ref"`
	Breakdown      ChargeBreakdown `json:"breakdown"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
}

// Key returns the idempotency key of the record.
func (r APRecord) Key() IdempotencyKey {
	return NewIdempotencyKey(r.OrderNumber, r.InvoiceNumber, r.SourceEmailRef)
}

// PostedTotal is the sum of all line postings.
func (r APRecord) PostedTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range r.LinePostings {
		sum = sum.Add(p.Amount)
	}
	return sum
}
