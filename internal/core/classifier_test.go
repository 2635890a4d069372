package core_test

import (
	"testing"

	"invoice-reconciler/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeClassifier_Classify(t *testing.T) {
	c := core.NewChargeClassifier(core.DefaultChargeRules()).WithProductSKUs("WID-100", "GAD-7")

	tests := []struct {
		desc string
		want core.ChargeCategory
	}{
		{"Freight", core.CategoryFreight},
		{"SHIPPING & insurance", core.CategoryFreight},
		{"Delivery fee", core.CategoryFreight},
		{"Baling charge", core.CategoryHandling},
		{"handling", core.CategoryHandling},
		{"Early payment discount", core.CategoryDiscount},
		{"Volume REBATE", core.CategoryDiscount},
		{"Widget WID100 x 4", core.CategoryInventory},
		{"gad-7 gadget", core.CategoryInventory},
		{"Environmental levy", core.CategoryUnclassified},
		{"", core.CategoryUnclassified},
		// First match wins: freight precedes discount in the table.
		{"Freight discount", core.CategoryFreight},
		// Keyword rules are evaluated before SKU lines.
		{"WID-100 delivery", core.CategoryFreight},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.desc))
		})
	}
}

func TestChargeClassifier_CustomRules(t *testing.T) {
	c := core.NewChargeClassifier([]core.ChargeRule{
		{Category: core.CategoryHandling, Keywords: []string{"Pallet"}},
		{Category: core.CategoryFreight, Keywords: []string{" ", ""}},
	})
	assert.Equal(t, core.CategoryHandling, c.Classify("pallet wrap"))
	assert.Equal(t, core.CategoryUnclassified, c.Classify("freight"))

	var zero core.ChargeClassifier
	assert.Equal(t, core.CategoryUnclassified, zero.Classify("freight"))
}

func TestChargeClassifier_WithProductSKUsDoesNotMutate(t *testing.T) {
	base := core.NewChargeClassifier(nil)
	withSKU := base.WithProductSKUs("ABC1")
	assert.Equal(t, core.CategoryInventory, withSKU.Classify("abc-1"))
	assert.Equal(t, core.CategoryUnclassified, base.Classify("abc-1"))
}

func TestParseChargeCategory(t *testing.T) {
	c, err := core.ParseChargeCategory(" freight ")
	require.NoError(t, err)
	assert.Equal(t, core.CategoryFreight, c)

	_, err = core.ParseChargeCategory("tax")
	assert.Error(t, err)
}

func TestAccountMap(t *testing.T) {
	m := core.DefaultAccountMap()

	code, ok := m.Lookup(core.CategoryInventory)
	assert.True(t, ok)
	assert.Equal(t, "1630", code)

	_, ok = m.Lookup(core.CategoryUnclassified)
	assert.False(t, ok)

	merged := m.Merge(core.AccountMap{core.CategoryFreight: "5399", core.CategoryUnclassified: "9999"})
	code, _ = merged.Lookup(core.CategoryFreight)
	assert.Equal(t, "5399", code)
	code, ok = merged.Lookup(core.CategoryUnclassified)
	assert.True(t, ok)
	assert.Equal(t, "9999", code)

	// Original untouched.
	code, _ = m.Lookup(core.CategoryFreight)
	assert.Equal(t, "5315", code)
}
