package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"invoice-reconciler/internal/core"
	"invoice-reconciler/internal/logger"
	"invoice-reconciler/internal/mail"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"github.com/rs/zerolog"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = string(shared.ChatModelGPT4o)

// maxPromptChars bounds the document text sent to the model, in bytes.
const maxPromptChars = 60000

// truncateText cuts s to at most n bytes without splitting a rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// OpenAIExtractor reads the PDF text layer and asks the model for an
// ExtractedInvoice under a strict JSON schema.
type OpenAIExtractor struct {
	client  *openai.Client
	model   string
	schema  map[string]any
	pdfText func([]byte) (string, error)
	log     zerolog.Logger
}

// NewOpenAIExtractor creates an extractor. Extra request options are appended
// after the API key (base URL, retries, HTTP client).
func NewOpenAIExtractor(apiKey, model string, opts ...option.RequestOption) (*OpenAIExtractor, error) {
	schema, err := invoiceSchema()
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIExtractor{
		client:  &client,
		model:   model,
		schema:  schema,
		pdfText: PDFText,
		log:     logger.WithComponent("extractor.openai"),
	}, nil
}

func (e *OpenAIExtractor) Extract(ctx context.Context, msg mail.Message, att mail.Attachment) (core.RawInvoiceCandidate, error) {
	const op = "OpenAIExtractor.Extract"
	ref := msg.AttachmentRef(att)

	if err := checkDocument(op, ref, att.Data); err != nil {
		return core.RawInvoiceCandidate{}, err
	}
	text, err := e.pdfText(att.Data)
	if err != nil {
		return core.RawInvoiceCandidate{}, wrapErr(op, ref, err, att.Filename)
	}
	text = truncateText(text, maxPromptChars)

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(e.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(buildPrompt(msg, att, text)),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "supplier_invoice",
					Strict:      param.NewOpt(true),
					Schema:      e.schema,
					Description: param.NewOpt("Structured fields of a supplier invoice"),
				},
			},
		},
	}

	start := time.Now()
	resp, err := e.client.Responses.New(ctx, params)
	if err != nil {
		return core.RawInvoiceCandidate{}, fmt.Errorf("openai responses [%s]: %w", ref, err)
	}

	content := resp.OutputText()
	if content == "" {
		return core.RawInvoiceCandidate{}, wrapErr(op, ref, ErrEmptyResponse, "")
	}

	var extracted ExtractedInvoice
	if err := json.Unmarshal([]byte(content), &extracted); err != nil {
		return core.RawInvoiceCandidate{}, wrapErr(op, ref, err, "parse model output")
	}

	e.log.Debug().
		Str("ref", ref).
		Bool("is_invoice", extracted.IsInvoice).
		Str("invoice_number", extracted.InvoiceNumber).
		Str("total", extracted.Total).
		Dur("took", time.Since(start)).
		Msg("attachment extracted")

	return extracted.ToCandidate(msg, att)
}

func buildPrompt(msg mail.Message, att mail.Attachment, text string) string {
	return fmt.Sprintf(`You read supplier invoices for an accounts-payable team.
Extract the fields of the document below.
Rules:
1. Set is_invoice to false for statements, remittance advices, quotes and anything that is not a supplier invoice.
2. Copy invoice_number and order_reference exactly as printed, including dashes and prefixes.
3. Amounts are plain decimal strings without currency symbols or thousands separators (e.g. "1075.00").
4. line_items holds product lines only. Freight, shipping, delivery, handling, packing, surcharges, fees and discounts go to charge_lines.
5. Discounts and credits are negative amounts.
6. Use empty strings for values that are not printed.

Email subject: %s
Email from: %s
Received: %s
Attachment: %s

Document text:
%s`, msg.Subject, msg.From, msg.ReceivedAt.Format(time.RFC3339), att.Filename, text)
}

func invoiceSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaJSON, err := json.Marshal(reflector.Reflect(ExtractedInvoice{}))
	if err != nil {
		return nil, fmt.Errorf("marshal invoice schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return nil, fmt.Errorf("unmarshal invoice schema: %w", err)
	}
	return schema, nil
}
