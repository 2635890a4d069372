package core

import (
	"github.com/shopspring/decimal"
)

// DefaultTolerance is the reconciliation tolerance in currency units.
var DefaultTolerance = decimal.RequireFromString("0.01")

// ChargeBreakdown splits an invoice total into categorized amounts.
// Amounts only holds categories that received a non-zero amount.
// Residual is the unexplained remainder that was routed to UNCLASSIFIED; it is
// zero when the lines reconciled within tolerance.
type ChargeBreakdown struct {
	Total    decimal.Decimal                    `json:"total"`
	Amounts  map[ChargeCategory]decimal.Decimal `json:"amounts"`
	Residual decimal.Decimal                    `json:"residual"`
}

// Amount returns the amount for a category, zero if absent.
func (b ChargeBreakdown) Amount(c ChargeCategory) decimal.Decimal {
	if v, ok := b.Amounts[c]; ok {
		return v
	}
	return decimal.Zero
}

// Sum adds all categorized amounts.
func (b ChargeBreakdown) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range b.Amounts {
		sum = sum.Add(v)
	}
	return sum
}

// Gap is the difference between the invoice total and the categorized sum.
func (b ChargeBreakdown) Gap() decimal.Decimal {
	return b.Total.Sub(b.Sum())
}

// Reconciles reports whether the categorized sum equals the total within tolerance.
func (b ChargeBreakdown) Reconciles(tolerance decimal.Decimal) bool {
	return b.Gap().Abs().LessThanOrEqual(tolerance)
}

// Categories lists the categories present, in posting order.
func (b ChargeBreakdown) Categories() []ChargeCategory {
	var out []ChargeCategory
	for _, c := range ChargeCategories {
		if _, ok := b.Amounts[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Decomposer splits invoice totals into charge categories.
type Decomposer struct {
	classifier *ChargeClassifier
	tolerance  decimal.Decimal
}

// NewDecomposer builds a decomposer. A negative tolerance is treated as zero.
func NewDecomposer(classifier *ChargeClassifier, tolerance decimal.Decimal) *Decomposer {
	if classifier == nil {
		classifier = NewChargeClassifier(DefaultChargeRules())
	}
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	return &Decomposer{classifier: classifier, tolerance: tolerance}
}

// Decompose accumulates product lines into INVENTORY and classified charge lines
// into their buckets. A residual beyond tolerance is added to UNCLASSIFIED; no
// classified bucket is ever adjusted to force a balance.
func (d *Decomposer) Decompose(c RawInvoiceCandidate) ChargeBreakdown {
	buckets := make(map[ChargeCategory]decimal.Decimal)
	add := func(cat ChargeCategory, amt decimal.Decimal) {
		buckets[cat] = buckets[cat].Add(amt)
	}

	for _, l := range c.LineItems {
		add(CategoryInventory, l.Amount)
	}
	for _, l := range c.ChargeLines {
		add(d.classifier.Classify(l.Description), l.Amount)
	}

	sum := decimal.Zero
	for _, v := range buckets {
		sum = sum.Add(v)
	}

	residual := c.Total.Sub(sum)
	if residual.Abs().GreaterThan(d.tolerance) {
		add(CategoryUnclassified, residual)
	} else {
		residual = decimal.Zero
	}

	for cat, v := range buckets {
		if v.IsZero() {
			delete(buckets, cat)
		}
	}

	return ChargeBreakdown{Total: c.Total, Amounts: buckets, Residual: residual}
}
