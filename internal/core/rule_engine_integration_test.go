package core_test

import (
	"context"
	"testing"

	"invoice-reconciler/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleEngine_AccountMap(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	_, err := pool.Exec(ctx, `
		INSERT INTO account_rules (company_id, rule_type, account_code, priority, effective_to)
		VALUES
		  (1, 'CHARGE_FREIGHT',      '5399', 10, NULL),
		  (1, 'CHARGE_FREIGHT',      '5300',  0, NULL),
		  (1, 'CHARGE_UNCLASSIFIED', '9999',  0, NULL),
		  (1, 'CHARGE_HANDLING',     '7000', 50, '2000-01-01'),
		  (1, 'CHARGE_TAX',          '2200',  0, NULL),
		  (1, 'AP',                  '2000',  0, NULL);
	`)
	require.NoError(t, err, "seed account_rules")

	re := core.NewRuleEngine(pool)
	m, err := re.AccountMap(ctx, "1000", core.DefaultAccountMap())
	require.NoError(t, err)

	t.Run("priority DESC picks highest priority row", func(t *testing.T) {
		code, _ := m.Lookup(core.CategoryFreight)
		assert.Equal(t, "5399", code)
	})

	t.Run("fills a category with no default", func(t *testing.T) {
		code, ok := m.Lookup(core.CategoryUnclassified)
		assert.True(t, ok)
		assert.Equal(t, "9999", code)
	})

	t.Run("expired rule is ignored", func(t *testing.T) {
		code, _ := m.Lookup(core.CategoryHandling)
		assert.Equal(t, "6406", code)
	})

	t.Run("other company falls back to defaults", func(t *testing.T) {
		other, err := re.AccountMap(ctx, "2000", core.DefaultAccountMap())
		require.NoError(t, err)
		assert.Equal(t, core.DefaultAccountMap(), other)
	})
}
