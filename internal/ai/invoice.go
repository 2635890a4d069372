package ai

import (
	"fmt"
	"strings"
	"time"

	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/mail"

	"github.com/shopspring/decimal"
)

// ExtractedLine is one printed line of an invoice.
type ExtractedLine struct {
	Description string `json:"description" jsonschema_description:"Line text as printed"`
	Amount      string `json:"amount" jsonschema_description:"Line total as a plain decimal string e.g. 1075.00; negative for credits"`
}

// ExtractedInvoice is the structured-output contract of the extraction model.
// Every field is required; unknown values are empty strings.
type ExtractedInvoice struct {
	IsInvoice      bool            `json:"is_invoice" jsonschema_description:"False when the document is not a supplier invoice"`
	InvoiceNumber  string          `json:"invoice_number" jsonschema_description:"Invoice number exactly as printed"`
	OrderReference string          `json:"order_reference" jsonschema_description:"Customer purchase order or consignment number exactly as printed"`
	SupplierName   string          `json:"supplier_name" jsonschema_description:"Legal name of the issuing supplier"`
	InvoiceDate    string          `json:"invoice_date" jsonschema_description:"Invoice date as YYYY-MM-DD"`
	DueDate        string          `json:"due_date" jsonschema_description:"Payment due date as YYYY-MM-DD"`
	Currency       string          `json:"currency" jsonschema_description:"ISO 4217 currency code"`
	Total          string          `json:"total" jsonschema_description:"Invoice grand total as a plain decimal string"`
	LineItems      []ExtractedLine `json:"line_items" jsonschema_description:"Product or SKU lines only"`
	ChargeLines    []ExtractedLine `json:"charge_lines" jsonschema_description:"Freight and handling and discount and any other non-product charges"`
}

// ToCandidate validates the extraction and combines it with the email metadata.
func (x ExtractedInvoice) ToCandidate(msg mail.Message, att mail.Attachment) (core.RawInvoiceCandidate, error) {
	const op = "ToCandidate"
	ref := msg.AttachmentRef(att)

	if !x.IsInvoice {
		return core.RawInvoiceCandidate{}, wrapErr(op, ref, ErrNotInvoice, "")
	}

	total, err := parseAmount(x.Total)
	if err != nil {
		return core.RawInvoiceCandidate{}, wrapErr(op, ref, ErrMissingTotal, fmt.Sprintf("total %q", x.Total))
	}

	c := core.RawInvoiceCandidate{
		EmailSubject:    msg.Subject,
		EmailFrom:       msg.From,
		EmailReceivedAt: msg.ReceivedAt,
		InvoiceNumber:   strings.TrimSpace(x.InvoiceNumber),
		OrderReference:  strings.TrimSpace(x.OrderReference),
		SupplierName:    strings.TrimSpace(x.SupplierName),
		InvoiceDate:     parseDate(x.InvoiceDate),
		DueDate:         parseDate(x.DueDate),
		Currency:        strings.ToUpper(strings.TrimSpace(x.Currency)),
		Total:           total,
		AttachmentRef:   ref,
	}
	if c.LineItems, err = convertLines(x.LineItems); err != nil {
		return core.RawInvoiceCandidate{}, wrapErr(op, ref, err, "line_items")
	}
	if c.ChargeLines, err = convertLines(x.ChargeLines); err != nil {
		return core.RawInvoiceCandidate{}, wrapErr(op, ref, err, "charge_lines")
	}
	return c, nil
}

func convertLines(in []ExtractedLine) ([]core.InvoiceLine, error) {
	out := make([]core.InvoiceLine, 0, len(in))
	for i, l := range in {
		if strings.TrimSpace(l.Amount) == "" {
			continue
		}
		amt, err := parseAmount(l.Amount)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		out = append(out, core.InvoiceLine{Description: strings.TrimSpace(l.Description), Amount: amt})
	}
	return out, nil
}

var currencyNoise = strings.NewReplacer(
	" ", "", " ", "", "$", "", "€", "", "£", "",
	"USD", "", "EUR", "", "GBP", "", "AUD", "", "NZD", "", "CAD", "",
)

// parseAmount reads printed amounts: "1,075.00", "1.075,00", "$ 50", "(25.00)", "-5".
// The last separator is the decimal point unless it is a comma, or a repeated
// dot, followed by exactly three digits.
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := currencyNoise.Replace(strings.TrimSpace(s))
	if cleaned == "" || strings.EqualFold(cleaned, "null") {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	if strings.HasSuffix(cleaned, "-") {
		negative = true
		cleaned = strings.TrimSuffix(cleaned, "-")
	}

	if last := strings.LastIndexAny(cleaned, ".,"); last >= 0 {
		sep := cleaned[last]
		intPart := strings.NewReplacer(",", "", ".", "").Replace(cleaned[:last])
		frac := cleaned[last+1:]
		if len(frac) == 3 && (sep == ',' || strings.Count(cleaned, ".") > 1) {
			cleaned = intPart + frac
		} else {
			cleaned = intPart + "." + frac
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to parse amount %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"01/02/2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
