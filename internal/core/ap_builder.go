package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BuildFailure is the structured reason an AP record could not be built.
type BuildFailure string

const (
	FailureNoMatch            BuildFailure = "NO_MATCH"
	FailureDuplicate          BuildFailure = "DUPLICATE"
	FailureGapTooLarge        BuildFailure = "RECONCILIATION_GAP_TOO_LARGE"
	FailureMissingAccountCode BuildFailure = "MISSING_ACCOUNT_CODE"
)

var (
	// ErrDuplicateAPRecord is returned by a store when the idempotency key is already taken.
	ErrDuplicateAPRecord = errors.New("ap record already exists for order/invoice pair")
	// ErrOrderNotFound is returned when no order matches the requested number.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAPRecordNotFound is returned when an AP record lookup finds nothing.
	ErrAPRecordNotFound = errors.New("ap record not found")
)

// BuildError reports a failed build. It always carries the computed breakdown.
type BuildError struct {
	Reason    BuildFailure
	Detail    string
	Breakdown ChargeBreakdown
}

func (e *BuildError) Error() string {
	if e.Detail == "" {
		return "build ap record: " + string(e.Reason)
	}
	return fmt.Sprintf("build ap record: %s: %s", e.Reason, e.Detail)
}

// Is lets errors.Is(err, ErrDuplicateAPRecord) hold for DUPLICATE failures.
func (e *BuildError) Is(target error) bool {
	return target == ErrDuplicateAPRecord && e.Reason == FailureDuplicate
}

// APRecordLookup is the idempotency check the builder consults before emitting a record.
type APRecordLookup interface {
	Exists(ctx context.Context, key IdempotencyKey) (bool, error)
}

// EngineConfig is the tunable configuration of the matching engine.
type EngineConfig struct {
	ChargeRules     []ChargeRule
	AccountCodes    AccountMap
	Tolerance       decimal.Decimal
	GapCeilingRatio decimal.Decimal
}

// DefaultEngineConfig returns the stock keyword table, chart mapping and limits.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ChargeRules:     DefaultChargeRules(),
		AccountCodes:    DefaultAccountMap(),
		Tolerance:       DefaultTolerance,
		GapCeilingRatio: decimal.NewFromInt(1),
	}
}

// APRecordBuilder turns a match and its breakdown into a DRAFT AP record.
type APRecordBuilder struct {
	accounts        AccountMap
	lookup          APRecordLookup
	gapCeilingRatio decimal.Decimal
}

// NewAPRecordBuilder creates a builder. A nil lookup skips the idempotency check,
// which is only appropriate for dry runs.
func NewAPRecordBuilder(accounts AccountMap, lookup APRecordLookup, gapCeilingRatio decimal.Decimal) *APRecordBuilder {
	if accounts == nil {
		accounts = DefaultAccountMap()
	}
	return &APRecordBuilder{accounts: accounts, lookup: lookup, gapCeilingRatio: gapCeilingRatio}
}

// Build validates the match and emits one posting per non-zero bucket. On a
// business failure it returns a FAILED record together with a *BuildError; any
// other error comes from the lookup and means the check itself could not run.
func (b *APRecordBuilder) Build(ctx context.Context, match MatchResult, breakdown ChargeBreakdown) (*APRecord, error) {
	rec := newRecord(match, breakdown)

	fail := func(reason BuildFailure, detail string) (*APRecord, error) {
		rec.Status = APStatusFailed
		rec.FailureReason = reason
		rec.LinePostings = nil
		return rec, &BuildError{Reason: reason, Detail: detail, Breakdown: breakdown}
	}

	if match.Confidence == ConfidenceNone {
		return fail(FailureNoMatch, "no candidate reached WEAK confidence")
	}
	if key := rec.Key(); !key.Valid() {
		return fail(FailureNoMatch, fmt.Sprintf("order %q or invoice has no usable identifier (key %s)", rec.OrderNumber, key))
	}

	if b.lookup != nil {
		key := rec.Key()
		exists, err := b.lookup.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("check idempotency key %s: %w", key, err)
		}
		if exists {
			return fail(FailureDuplicate, "already recorded as "+key.String())
		}
	}

	if residual := breakdown.Residual; !residual.IsZero() {
		ceiling := breakdown.Total.Abs().Mul(b.gapCeilingRatio)
		if residual.Abs().GreaterThan(ceiling) {
			return fail(FailureGapTooLarge, fmt.Sprintf("unexplained %s exceeds ceiling %s", residual.StringFixed(2), ceiling.StringFixed(2)))
		}
	}

	var missing []string
	for _, cat := range breakdown.Categories() {
		amount := breakdown.Amounts[cat]
		code, ok := b.accounts.Lookup(cat)
		if !ok && cat != CategoryUnclassified {
			missing = append(missing, string(cat))
			continue
		}
		rec.LinePostings = append(rec.LinePostings, LinePosting{
			Category:    cat,
			AccountCode: code,
			Amount:      amount,
			Description: postingDescription(cat, rec),
		})
	}
	if len(missing) > 0 {
		return fail(FailureMissingAccountCode, "no account code for "+strings.Join(missing, ", "))
	}

	rec.Status = APStatusDraft
	return rec, nil
}

func newRecord(match MatchResult, breakdown ChargeBreakdown) *APRecord {
	c := match.Candidate
	supplier := strings.TrimSpace(c.SupplierName)
	if supplier == "" {
		supplier = fromDisplayName(c.EmailFrom)
	}
	return &APRecord{
		OrderNumber:    match.OrderNumber,
		InvoiceNumber:  strings.TrimSpace(c.InvoiceNumber),
		SupplierName:   supplier,
		InvoiceDate:    c.InvoiceDate,
		DueDate:        c.DueDate,
		Currency:       c.Currency,
		Total:          c.Total,
		Confidence:     match.Confidence,
		SourceEmailRef: c.AttachmentRef,
		Breakdown:      breakdown,
	}
}

func postingDescription(cat ChargeCategory, rec *APRecord) string {
	ref := rec.InvoiceNumber
	if ref == "" {
		ref = rec.SourceEmailRef
	}
	switch cat {
	case CategoryUnclassified:
		return fmt.Sprintf("Unclassified remainder on invoice %s (order %s), code manually", ref, rec.OrderNumber)
	default:
		name := strings.ToLower(string(cat))
		return fmt.Sprintf("%s%s %s for order %s", strings.ToUpper(name[:1]), name[1:], ref, rec.OrderNumber)
	}
}
