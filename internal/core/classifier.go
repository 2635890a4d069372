package core

import (
	"fmt"
	"strings"
)

// ChargeCategory is a ledger classification for an invoice amount.
type ChargeCategory string

const (
	CategoryInventory    ChargeCategory = "INVENTORY"
	CategoryFreight      ChargeCategory = "FREIGHT"
	CategoryHandling     ChargeCategory = "HANDLING"
	CategoryDiscount     ChargeCategory = "DISCOUNT"
	CategoryUnclassified ChargeCategory = "UNCLASSIFIED"
)

// ChargeCategories lists every category in posting order.
var ChargeCategories = []ChargeCategory{
	CategoryInventory,
	CategoryFreight,
	CategoryHandling,
	CategoryDiscount,
	CategoryUnclassified,
}

// ParseChargeCategory accepts a category name in any case.
func ParseChargeCategory(s string) (ChargeCategory, error) {
	c := ChargeCategory(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range ChargeCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown charge category %q", s)
}

// ChargeRule maps any of its keywords, matched as case-insensitive substrings,
// to a category.
type ChargeRule struct {
	Category ChargeCategory `json:"category" mapstructure:"category"`
	Keywords []string       `json:"keywords" mapstructure:"keywords"`
}

// DefaultChargeRules is the stock keyword table. Order matters: first match wins.
func DefaultChargeRules() []ChargeRule {
	return []ChargeRule{
		{Category: CategoryFreight, Keywords: []string{"freight", "shipping", "delivery"}},
		{Category: CategoryHandling, Keywords: []string{"baling", "handling"}},
		{Category: CategoryDiscount, Keywords: []string{"discount", "rebate"}},
	}
}

type chargePredicate struct {
	match    func(description string) bool
	category ChargeCategory
}

// ChargeClassifier evaluates an ordered (predicate, category) table, first match wins.
// The zero value classifies everything as UNCLASSIFIED.
type ChargeClassifier struct {
	rules []chargePredicate
	skus  []string
}

// NewChargeClassifier compiles keyword rules into the classifier's predicate table.
func NewChargeClassifier(rules []ChargeRule) *ChargeClassifier {
	c := &ChargeClassifier{}
	for _, r := range rules {
		keywords := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords = append(keywords, k)
			}
		}
		if len(keywords) == 0 {
			continue
		}
		c.rules = append(c.rules, chargePredicate{
			match:    containsAny(keywords),
			category: r.Category,
		})
	}
	return c
}

func containsAny(keywords []string) func(string) bool {
	return func(description string) bool {
		lower := strings.ToLower(description)
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				return true
			}
		}
		return false
	}
}

// WithProductSKUs returns a copy of the classifier that also recognises lines
// naming one of the given SKUs as INVENTORY, after all keyword rules.
func (c *ChargeClassifier) WithProductSKUs(skus ...string) *ChargeClassifier {
	cp := &ChargeClassifier{rules: c.rules}
	for _, s := range skus {
		if k := canonical(s); k != "" {
			cp.skus = append(cp.skus, k)
		}
	}
	return cp
}

// Classify maps a free-text charge label to a category.
func (c *ChargeClassifier) Classify(description string) ChargeCategory {
	for _, r := range c.rules {
		if r.match(description) {
			return r.category
		}
	}
	if c.isProductLine(description) {
		return CategoryInventory
	}
	return CategoryUnclassified
}

func (c *ChargeClassifier) isProductLine(description string) bool {
	if len(c.skus) == 0 {
		return false
	}
	desc := canonical(description)
	for _, sku := range c.skus {
		if strings.Contains(desc, sku) {
			return true
		}
	}
	return false
}

// AccountMap assigns ledger account codes to charge categories. A category with
// no entry has no default code.
type AccountMap map[ChargeCategory]string

// DefaultAccountMap returns the stock chart mapping. UNCLASSIFIED is left unmapped.
func DefaultAccountMap() AccountMap {
	return AccountMap{
		CategoryInventory: "1630",
		CategoryFreight:   "5315",
		CategoryHandling:  "6406",
		CategoryDiscount:  "5320",
	}
}

// Lookup returns the account code for a category and whether one is configured.
func (m AccountMap) Lookup(c ChargeCategory) (string, bool) {
	code, ok := m[c]
	return code, ok && code != ""
}

// Merge returns a new map with overrides applied on top of m.
func (m AccountMap) Merge(overrides AccountMap) AccountMap {
	out := make(AccountMap, len(m)+len(overrides))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
