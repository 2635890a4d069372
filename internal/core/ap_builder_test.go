package core_test

import (
	"context"
	"errors"
	"testing"

	"invoice-reconciler/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryLedger is an in-memory idempotency store standing in for the database.
type memoryLedger struct {
	keys map[core.IdempotencyKey]bool
	err  error
}

func (m *memoryLedger) Exists(_ context.Context, key core.IdempotencyKey) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.keys[key], nil
}

func (m *memoryLedger) commit(rec *core.APRecord) {
	if m.keys == nil {
		m.keys = make(map[core.IdempotencyKey]bool)
	}
	m.keys[rec.Key()] = true
}

func scenarioA() (core.MatchResult, core.ChargeBreakdown) {
	order := core.Order{OrderNumber: "AZ003422", SupplierName: "ACME SUPPLIER"}
	c := core.RawInvoiceCandidate{
		InvoiceNumber: "AZ003422",
		SupplierName:  "ACME SUPPLIER",
		Currency:      "USD",
		Total:         d("1075.00"),
		LineItems:     []core.InvoiceLine{{Description: "Widgets", Amount: d("1000.00")}},
		ChargeLines: []core.InvoiceLine{
			{Description: "Freight", Amount: d("50.00")},
			{Description: "Baling", Amount: d("25.00")},
		},
		AttachmentRef: "msg-1/att-1",
	}
	results := core.Match(order, []core.RawInvoiceCandidate{c})
	best, _ := core.Best(results)
	return best, newDecomposer().Decompose(c)
}

func newBuilder(lookup core.APRecordLookup) *core.APRecordBuilder {
	return core.NewAPRecordBuilder(core.DefaultAccountMap(), lookup, decimal.NewFromInt(1))
}

func TestBuild_ScenarioA(t *testing.T) {
	match, breakdown := scenarioA()

	rec, err := newBuilder(&memoryLedger{}).Build(context.Background(), match, breakdown)
	require.NoError(t, err)

	assert.Equal(t, core.APStatusDraft, rec.Status)
	assert.Equal(t, "AZ003422", rec.OrderNumber)
	assert.Equal(t, "AZ003422", rec.InvoiceNumber)
	assert.Equal(t, "ACME SUPPLIER", rec.SupplierName)
	assert.Equal(t, "msg-1/att-1", rec.SourceEmailRef)
	assert.Equal(t, core.ConfidenceExact, rec.Confidence)
	assert.Empty(t, rec.FailureReason)

	require.Len(t, rec.LinePostings, 3)
	want := []struct {
		code, amount string
	}{{"1630", "1000.00"}, {"5315", "50.00"}, {"6406", "25.00"}}
	for i, w := range want {
		assert.Equal(t, w.code, rec.LinePostings[i].AccountCode)
		assert.True(t, d(w.amount).Equal(rec.LinePostings[i].Amount))
		assert.NotEmpty(t, rec.LinePostings[i].Description)
	}
	assert.True(t, rec.PostedTotal().Equal(rec.Total))
}

func TestBuild_NoMatch(t *testing.T) {
	_, breakdown := scenarioA()

	rec, err := newBuilder(nil).Build(context.Background(), core.MatchResult{OrderNumber: "AZ1"}, breakdown)

	var be *core.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, core.FailureNoMatch, be.Reason)
	assert.Equal(t, breakdown, be.Breakdown)
	require.NotNil(t, rec)
	assert.Equal(t, core.APStatusFailed, rec.Status)
	assert.Equal(t, core.FailureNoMatch, rec.FailureReason)
	assert.Empty(t, rec.LinePostings)
}

func TestBuild_UnusableIdempotencyKey(t *testing.T) {
	_, breakdown := scenarioA()
	tests := []struct {
		name  string
		match core.MatchResult
	}{
		{"degenerate order number", core.MatchResult{
			OrderNumber: "---",
			Confidence:  core.ConfidenceWeak,
			Candidate:   core.RawInvoiceCandidate{InvoiceNumber: "INV1", SupplierName: "Acme", Total: d("1075.00")},
		}},
		{"no invoice number or attachment", core.MatchResult{
			OrderNumber: "AZ003422",
			Confidence:  core.ConfidenceStrong,
			Candidate:   core.RawInvoiceCandidate{SupplierName: "Acme", Total: d("1075.00")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &memoryLedger{}
			rec, err := newBuilder(ledger).Build(context.Background(), tt.match, breakdown)

			var be *core.BuildError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, core.FailureNoMatch, be.Reason)
			require.NotNil(t, rec)
			assert.Equal(t, core.APStatusFailed, rec.Status)
			assert.Empty(t, rec.LinePostings)
			assert.False(t, rec.Key().Valid())
		})
	}
}

func TestBuild_Idempotent(t *testing.T) {
	match, breakdown := scenarioA()
	ledger := &memoryLedger{}
	b := newBuilder(ledger)
	ctx := context.Background()

	first, err := b.Build(ctx, match, breakdown)
	require.NoError(t, err)
	ledger.commit(first)

	second, err := b.Build(ctx, match, breakdown)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDuplicateAPRecord))

	var be *core.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, core.FailureDuplicate, be.Reason)
	assert.Equal(t, core.APStatusFailed, second.Status)

	// Formatting differences in the invoice number do not evade the key.
	match.Candidate.InvoiceNumber = "az-003422"
	_, err = b.Build(ctx, match, breakdown)
	assert.True(t, errors.Is(err, core.ErrDuplicateAPRecord))
}

func TestBuild_LookupFailureIsNotABuildFailure(t *testing.T) {
	match, breakdown := scenarioA()
	boom := errors.New("connection reset")

	rec, err := newBuilder(&memoryLedger{err: boom}).Build(context.Background(), match, breakdown)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, boom)

	var be *core.BuildError
	assert.False(t, errors.As(err, &be))
}

func TestBuild_UnclassifiedPostedWithoutCode(t *testing.T) {
	order := core.Order{OrderNumber: "PO-9", SupplierName: "Acme"}
	c := core.RawInvoiceCandidate{
		InvoiceNumber: "PO-9",
		SupplierName:  "Acme",
		Total:         d("500.00"),
		LineItems:     []core.InvoiceLine{{Description: "Stock", Amount: d("480.00")}},
	}
	match, _ := core.Best(core.Match(order, []core.RawInvoiceCandidate{c}))

	rec, err := newBuilder(nil).Build(context.Background(), match, newDecomposer().Decompose(c))
	require.NoError(t, err)
	require.Len(t, rec.LinePostings, 2)
	assert.Equal(t, core.CategoryUnclassified, rec.LinePostings[1].Category)
	assert.Empty(t, rec.LinePostings[1].AccountCode)
	assert.True(t, d("20.00").Equal(rec.LinePostings[1].Amount))
}

func TestBuild_GapTooLarge(t *testing.T) {
	order := core.Order{OrderNumber: "PO-9", SupplierName: "Acme"}
	c := core.RawInvoiceCandidate{
		InvoiceNumber: "PO-9",
		SupplierName:  "Acme",
		Total:         d("100.00"),
		LineItems:     []core.InvoiceLine{{Description: "Stock", Amount: d("-150.00")}},
	}
	match, _ := core.Best(core.Match(order, []core.RawInvoiceCandidate{c}))
	breakdown := newDecomposer().Decompose(c)

	rec, err := newBuilder(nil).Build(context.Background(), match, breakdown)
	var be *core.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, core.FailureGapTooLarge, be.Reason)
	assert.True(t, d("250.00").Equal(be.Breakdown.Amount(core.CategoryUnclassified)))
	assert.Equal(t, core.APStatusFailed, rec.Status)

	// A looser ceiling accepts the same breakdown.
	loose := core.NewAPRecordBuilder(core.DefaultAccountMap(), nil, decimal.NewFromInt(3))
	_, err = loose.Build(context.Background(), match, breakdown)
	assert.NoError(t, err)
}

func TestBuild_MissingAccountCode(t *testing.T) {
	match, breakdown := scenarioA()
	accounts := core.AccountMap{core.CategoryInventory: "1630", core.CategoryFreight: "5315"}

	rec, err := core.NewAPRecordBuilder(accounts, nil, decimal.NewFromInt(1)).Build(context.Background(), match, breakdown)
	var be *core.BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, core.FailureMissingAccountCode, be.Reason)
	assert.Contains(t, be.Detail, "HANDLING")
	assert.Equal(t, core.APStatusFailed, rec.Status)
	assert.Empty(t, rec.LinePostings)
}

func TestBuild_SupplierFallsBackToSender(t *testing.T) {
	order := core.Order{OrderNumber: "PO-9", SupplierName: "Acme"}
	c := core.RawInvoiceCandidate{
		InvoiceNumber: "PO-9",
		EmailFrom:     "Acme Billing <billing@acme.test>",
		Total:         d("10.00"),
		LineItems:     []core.InvoiceLine{{Description: "Stock", Amount: d("10.00")}},
	}
	match, ok := core.Best(core.Match(order, []core.RawInvoiceCandidate{c}))
	require.True(t, ok)
	assert.Equal(t, core.ConfidenceExact, match.Confidence)

	rec, err := newBuilder(nil).Build(context.Background(), match, newDecomposer().Decompose(c))
	require.NoError(t, err)
	assert.Equal(t, "Acme Billing", rec.SupplierName)
}
