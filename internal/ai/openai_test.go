package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeResponses(t *testing.T, output string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/responses", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, seen))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "resp_1",
			"object":     "response",
			"created_at": 1709283600,
			"status":     "completed",
			"model":      "gpt-4o",
			"output": []map[string]any{{
				"type":   "message",
				"id":     "msg_1",
				"role":   "assistant",
				"status": "completed",
				"content": []map[string]any{{
					"type":        "output_text",
					"text":        output,
					"annotations": []any{},
				}},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAI(t *testing.T, srv *httptest.Server, text string) *OpenAIExtractor {
	t.Helper()
	e, err := NewOpenAIExtractor("test-key", "", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)
	e.pdfText = func([]byte) (string, error) { return text, nil }
	return e
}

func TestOpenAIExtractor_Extract(t *testing.T) {
	out := `{"is_invoice":true,"invoice_number":"AZ003422","order_reference":"AZ003463-0001","supplier_name":"Acme Supplier","invoice_date":"2024-02-28","due_date":"","currency":"USD","total":"1125.00","line_items":[{"description":"Widget","amount":"1000.00"}],"charge_lines":[{"description":"Freight","amount":"75.00"},{"description":"Handling","amount":"50.00"}]}`
	var seen map[string]any
	srv := fakeResponses(t, out, &seen)
	e := newTestOpenAI(t, srv, "TAX INVOICE AZ003422\nPO AZ003463-0001\nTotal 1,125.00")

	msg, att := testMessage()
	c, err := e.Extract(context.Background(), msg, att)
	require.NoError(t, err)

	assert.Equal(t, "AZ003422", c.InvoiceNumber)
	assert.Equal(t, "AZ003463-0001", c.OrderReference)
	assert.Equal(t, "1125", c.Total.String())
	assert.Len(t, c.ChargeLines, 2)
	assert.Equal(t, "m1/att-1", c.AttachmentRef)

	assert.Equal(t, DefaultOpenAIModel, seen["model"])
	assert.Contains(t, seen["input"], "PO AZ003463-0001")
	assert.Contains(t, seen["input"], msg.Subject)
	format := seen["text"].(map[string]any)["format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	assert.Equal(t, "supplier_invoice", format["name"])
	assert.Equal(t, true, format["strict"])
	schema := format["schema"].(map[string]any)
	assert.Equal(t, false, schema["additionalProperties"])
	assert.ElementsMatch(t, []any{
		"is_invoice", "invoice_number", "order_reference", "supplier_name", "invoice_date",
		"due_date", "currency", "total", "line_items", "charge_lines",
	}, schema["required"])
}

func TestOpenAIExtractor_NotInvoice(t *testing.T) {
	out := `{"is_invoice":false,"invoice_number":"","order_reference":"","supplier_name":"","invoice_date":"","due_date":"","currency":"","total":"","line_items":[],"charge_lines":[]}`
	var seen map[string]any
	e := newTestOpenAI(t, fakeResponses(t, out, &seen), "STATEMENT OF ACCOUNT")

	msg, att := testMessage()
	_, err := e.Extract(context.Background(), msg, att)
	assert.ErrorIs(t, err, ErrNotInvoice)
}

func TestOpenAIExtractor_RejectsBeforeCalling(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	t.Cleanup(srv.Close)
	e := newTestOpenAI(t, srv, "")
	e.pdfText = func([]byte) (string, error) { return "", ErrNoText }

	msg, att := testMessage()
	_, err := e.Extract(context.Background(), msg, att)
	assert.ErrorIs(t, err, ErrNoText)
	assert.True(t, IsSkippable(err))

	att.Data = []byte("not a pdf")
	_, err = e.Extract(context.Background(), msg, att)
	assert.ErrorIs(t, err, ErrInvalidPDF)
	assert.False(t, called)
}

func TestInvoiceSchema(t *testing.T) {
	schema, err := invoiceSchema()
	require.NoError(t, err)
	props := schema["properties"].(map[string]any)
	lines := props["charge_lines"].(map[string]any)
	assert.Equal(t, "array", lines["type"])
	items := lines["items"].(map[string]any)
	assert.Equal(t, false, items["additionalProperties"])
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "Rechnung", 20, "Rechnung"},
		{"ascii cut", "Rechnung", 4, "Rech"},
		{"inside two-byte rune", "Gebühr", 4, "Geb"},
		{"after two-byte rune", "Gebühr", 5, "Gebü"},
		{"inside euro sign", "12€", 3, "12"},
		{"zero", "€", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateText(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), max(tt.n, 0))
		})
	}
}
