package core_test

import (
	"testing"
	"time"

	"invoice-reconciler/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func candidate(invoiceNumber, supplier string, received time.Duration) core.RawInvoiceCandidate {
	return core.RawInvoiceCandidate{
		EmailSubject:    "Invoice attached",
		EmailFrom:       "billing@example.com",
		EmailReceivedAt: baseTime.Add(received),
		InvoiceNumber:   invoiceNumber,
		SupplierName:    supplier,
		Total:           decimal.NewFromInt(100),
		AttachmentRef:   "msg/" + invoiceNumber,
	}
}

func TestMatch_ScenarioA_Exact(t *testing.T) {
	order := core.Order{OrderNumber: "AZ003422", SupplierName: "ACME SUPPLIER"}
	results := core.Match(order, []core.RawInvoiceCandidate{candidate("AZ003422", "ACME SUPPLIER", 0)})

	require.Len(t, results, 1)
	assert.Equal(t, core.ConfidenceExact, results[0].Confidence)
	assert.Equal(t, "AZ003422", results[0].OrderNumber)
	assert.True(t, results[0].HasReason(core.ReasonOrderNumberExact))
	assert.True(t, results[0].HasReason(core.ReasonSupplierExact))
}

func TestMatch_ScenarioB_Normalized(t *testing.T) {
	order := core.Order{OrderNumber: "AZ003463-0001", SupplierName: "ACME SUPPLIER"}
	results := core.Match(order, []core.RawInvoiceCandidate{candidate("AZ0034630001", "Acme Supplier", 0)})

	require.Len(t, results, 1)
	assert.Equal(t, core.ConfidenceStrong, results[0].Confidence)
	assert.Equal(t, []core.MatchReason{core.ReasonOrderNumberNormalized, core.ReasonSupplierExact}, results[0].Reasons)
}

func TestMatch_ScenarioD_NoCandidates(t *testing.T) {
	order := core.Order{OrderNumber: "AZ1", SupplierName: "ACME"}
	assert.Empty(t, core.Match(order, nil))

	_, ok := core.Best(nil)
	assert.False(t, ok)
}

func TestMatch_ConfidenceGrades(t *testing.T) {
	order := core.Order{OrderNumber: "PO-100", SupplierName: "Northwind"}

	tests := []struct {
		name string
		cand core.RawInvoiceCandidate
		want core.Confidence
	}{
		{"raw order + partial supplier", candidate("PO-100", "Northwind Traders Ltd", 0), core.ConfidenceExact},
		{"normalized order + supplier", candidate("po100", "northwind", 0), core.ConfidenceStrong},
		{"order only", candidate("PO-100", "Contoso", 0), core.ConfidenceWeak},
		{"supplier only", candidate("INV-9", "Northwind", 0), core.ConfidenceWeak},
		{"neither", candidate("INV-9", "Contoso", 0), core.ConfidenceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := core.Match(order, []core.RawInvoiceCandidate{tt.cand})
			if tt.want == core.ConfidenceNone {
				assert.Empty(t, results)
				return
			}
			require.Len(t, results, 1)
			assert.Equal(t, tt.want, results[0].Confidence)
		})
	}
}

func TestMatch_TokensFromSubjectAndSender(t *testing.T) {
	order := core.Order{OrderNumber: "AZ003463-0001", SupplierName: "Acme Supplier"}

	// No invoice number: the order number comes from the subject, the supplier
	// from the sender's display name.
	c := core.RawInvoiceCandidate{
		EmailSubject:    "Invoice for order AZ003463-0001, thanks",
		EmailFrom:       `"Acme Supplier" <billing@acme.test>`,
		EmailReceivedAt: baseTime,
		Total:           decimal.NewFromInt(10),
	}
	results := core.Match(order, []core.RawInvoiceCandidate{c})
	require.Len(t, results, 1)
	assert.Equal(t, core.ConfidenceExact, results[0].Confidence)

	// The printed order reference also counts.
	c2 := core.RawInvoiceCandidate{InvoiceNumber: "INV-1", OrderReference: "AZ0034630001", SupplierName: "ACME SUPPLIER"}
	results = core.Match(order, []core.RawInvoiceCandidate{c2})
	require.Len(t, results, 1)
	assert.Equal(t, core.ConfidenceStrong, results[0].Confidence)
}

func TestMatch_DegenerateOrderNumberMatchesNothing(t *testing.T) {
	for _, number := range []string{"", "--", " / ", "---"} {
		t.Run(number, func(t *testing.T) {
			order := core.Order{OrderNumber: number, SupplierName: "Acme"}
			cands := []core.RawInvoiceCandidate{
				candidate("", "", 0),
				candidate("--", "Other", 0),
				candidate("INV1", "Acme", 0),
				{EmailSubject: "-- // --", SupplierName: "Acme"},
			}
			assert.Empty(t, core.Match(order, cands))
		})
	}
}

func TestMatch_OrderingAndDeterminism(t *testing.T) {
	order := core.Order{OrderNumber: "PO-100", SupplierName: "Northwind"}
	cands := []core.RawInvoiceCandidate{
		candidate("PO-100", "Contoso", 3*time.Hour),  // WEAK, newest
		candidate("PO100", "Northwind", time.Hour),   // STRONG, older
		candidate("PO-100", "Northwind", 0),          // EXACT
		candidate("PO100", "Northwind", 2*time.Hour), // STRONG, newer
		candidate("INV-X", "Contoso", 4*time.Hour),   // NONE
		candidate("PO-100", "Contoso", 3*time.Hour),  // WEAK, tie with first
	}
	cands[5].AttachmentRef = "second-weak"

	results := core.Match(order, cands)
	require.Len(t, results, 5)

	got := make([]core.Confidence, len(results))
	for i, r := range results {
		got[i] = r.Confidence
	}
	assert.Equal(t, []core.Confidence{
		core.ConfidenceExact, core.ConfidenceStrong, core.ConfidenceStrong, core.ConfidenceWeak, core.ConfidenceWeak,
	}, got)
	assert.Equal(t, baseTime.Add(2*time.Hour), results[1].Candidate.EmailReceivedAt)
	assert.Equal(t, baseTime.Add(time.Hour), results[2].Candidate.EmailReceivedAt)
	assert.Equal(t, "msg/PO-100", results[3].Candidate.AttachmentRef)
	assert.Equal(t, "second-weak", results[4].Candidate.AttachmentRef)

	for i := 0; i < 10; i++ {
		assert.Equal(t, results, core.Match(order, cands))
	}

	best, ok := core.Best(results)
	require.True(t, ok)
	assert.Equal(t, core.ConfidenceExact, best.Confidence)
}
