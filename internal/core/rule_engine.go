package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ChargeRulePrefix prefixes account_rules.rule_type for charge category mappings,
// e.g. CHARGE_FREIGHT.
const ChargeRulePrefix = "CHARGE_"

// AccountRuleSource resolves per-company account codes from the account_rules table.
type AccountRuleSource interface {
	// AccountMap overlays the company's active CHARGE_* rules onto defaults.
	// Categories without a rule keep their default code.
	AccountMap(ctx context.Context, companyCode string, defaults AccountMap) (AccountMap, error)
}

type ruleEngine struct {
	pool *pgxpool.Pool
}

// NewRuleEngine constructs an AccountRuleSource backed by the account_rules table.
func NewRuleEngine(pool *pgxpool.Pool) AccountRuleSource {
	return &ruleEngine{pool: pool}
}

func (r *ruleEngine) AccountMap(ctx context.Context, companyCode string, defaults AccountMap) (AccountMap, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (ar.rule_type) ar.rule_type, ar.account_code
		FROM account_rules ar
		JOIN companies c ON c.id = ar.company_id
		WHERE c.company_code = $1
		  AND ar.rule_type LIKE $2
		  AND ar.effective_from <= CURRENT_DATE
		  AND (ar.effective_to IS NULL OR ar.effective_to >= CURRENT_DATE)
		ORDER BY ar.rule_type, ar.priority DESC, ar.id DESC`,
		companyCode, ChargeRulePrefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("resolve account rules (company=%s): %w", companyCode, err)
	}
	defer rows.Close()

	overrides := AccountMap{}
	for rows.Next() {
		var ruleType, code string
		if err := rows.Scan(&ruleType, &code); err != nil {
			return nil, fmt.Errorf("scan account rule: %w", err)
		}
		cat, err := ParseChargeCategory(strings.TrimPrefix(ruleType, ChargeRulePrefix))
		if err != nil {
			// Unknown CHARGE_* rule types belong to other tools; ignore them.
			continue
		}
		overrides[cat] = code
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read account rules: %w", err)
	}
	return defaults.Merge(overrides), nil
}
