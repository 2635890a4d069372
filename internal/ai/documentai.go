package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/logger"
	"invoice-reconciler/internal/mail"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
)

// DocumentAIConfig addresses an Invoice Parser processor.
type DocumentAIConfig struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
	Timeout         time.Duration
}

func (c DocumentAIConfig) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

type processFunc func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error)

// DocumentAIExtractor maps Invoice Parser entities onto a candidate. It reads
// scanned invoices that have no text layer.
type DocumentAIExtractor struct {
	cfg     DocumentAIConfig
	process processFunc
	close   func() error
	log     zerolog.Logger
}

// NewDocumentAIExtractor dials the regional Document AI endpoint.
func NewDocumentAIExtractor(ctx context.Context, cfg DocumentAIConfig) (*DocumentAIExtractor, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("document ai: project id and processor id are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create document ai client (%s): %w", cfg.Location, err)
	}

	e := newDocumentAIExtractor(cfg, func(ctx context.Context, req *documentaipb.ProcessRequest) (*documentaipb.ProcessResponse, error) {
		return client.ProcessDocument(ctx, req)
	})
	e.close = client.Close
	return e, nil
}

func newDocumentAIExtractor(cfg DocumentAIConfig, process processFunc) *DocumentAIExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &DocumentAIExtractor{
		cfg:     cfg,
		process: process,
		close:   func() error { return nil },
		log:     logger.WithComponent("extractor.documentai"),
	}
}

// Close releases the underlying gRPC connection.
func (e *DocumentAIExtractor) Close() error {
	return e.close()
}

func (e *DocumentAIExtractor) Extract(ctx context.Context, msg mail.Message, att mail.Attachment) (core.RawInvoiceCandidate, error) {
	const op = "DocumentAIExtractor.Extract"
	ref := msg.AttachmentRef(att)

	if err := checkDocument(op, ref, att.Data); err != nil {
		return core.RawInvoiceCandidate{}, err
	}

	processCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.process(processCtx, &documentaipb.ProcessRequest{
		Name: e.cfg.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  att.Data,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		return core.RawInvoiceCandidate{}, fmt.Errorf("document ai process [%s]: %w", ref, err)
	}
	if resp.GetDocument() == nil {
		return core.RawInvoiceCandidate{}, wrapErr(op, ref, ErrEmptyResponse, "no document in response")
	}

	extracted := fromEntities(resp.GetDocument().GetEntities())
	e.log.Debug().
		Str("ref", ref).
		Int("entities", len(resp.GetDocument().GetEntities())).
		Str("invoice_number", extracted.InvoiceNumber).
		Str("total", extracted.Total).
		Msg("attachment processed")

	return extracted.ToCandidate(msg, att)
}

// fromEntities maps Invoice Parser entities onto the extraction contract. A
// document with neither an invoice id nor a total is not an invoice.
func fromEntities(entities []*documentaipb.Document_Entity) ExtractedInvoice {
	var x ExtractedInvoice
	for _, ent := range entities {
		switch ent.GetType() {
		case "invoice_id":
			x.InvoiceNumber = mention(ent)
		case "purchase_order":
			x.OrderReference = mention(ent)
		case "supplier_name":
			x.SupplierName = mention(ent)
		case "invoice_date":
			x.InvoiceDate = entityDate(ent)
		case "due_date":
			x.DueDate = entityDate(ent)
		case "currency":
			x.Currency = mention(ent)
		case "total_amount":
			x.Total = entityAmount(ent)
			if code := entityCurrency(ent); code != "" && x.Currency == "" {
				x.Currency = code
			}
		case "freight_amount":
			x.ChargeLines = append(x.ChargeLines, ExtractedLine{Description: "Freight", Amount: entityAmount(ent)})
		case "line_item":
			line := ExtractedLine{Description: mention(ent)}
			for _, p := range ent.GetProperties() {
				switch p.GetType() {
				case "line_item/description":
					line.Description = mention(p)
				case "line_item/amount":
					line.Amount = entityAmount(p)
				}
			}
			x.LineItems = append(x.LineItems, line)
		}
	}
	x.IsInvoice = x.InvoiceNumber != "" || x.Total != ""
	return x
}

func mention(ent *documentaipb.Document_Entity) string {
	return strings.Join(strings.Fields(ent.GetMentionText()), " ")
}

// entityAmount prefers the normalized money value over the printed text.
func entityAmount(ent *documentaipb.Document_Entity) string {
	if m := ent.GetNormalizedValue().GetMoneyValue(); m != nil {
		return decimal.New(m.GetUnits(), 0).Add(decimal.New(int64(m.GetNanos()), -9)).String()
	}
	return mention(ent)
}

func entityCurrency(ent *documentaipb.Document_Entity) string {
	if m := ent.GetNormalizedValue().GetMoneyValue(); m != nil {
		return m.GetCurrencyCode()
	}
	return ""
}

func entityDate(ent *documentaipb.Document_Entity) string {
	if d := ent.GetNormalizedValue().GetDateValue(); d != nil && d.GetYear() > 0 {
		return time.Date(int(d.GetYear()), time.Month(d.GetMonth()), int(d.GetDay()), 0, 0, 0, 0, time.UTC).Format("2006-01-02")
	}
	return mention(ent)
}
