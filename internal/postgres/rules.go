package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tally/internal/model"
)

// RuleStore reads and writes categorization rules.
type RuleStore struct {
	db *sql.DB
}

// NewRuleStore wraps an open database handle.
func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

// ListRules returns every rule of org, active or not, ordered by priority
// and then by the order they were first stored.
func (s *RuleStore) ListRules(ctx context.Context, org string) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, organization_id, name, keywords, regex, min_amount, max_amount,
       direction_hint, category_id, category_other, merchant_set,
       account_id, account_other, priority, active
FROM categorization_rules
WHERE organization_id = $1
ORDER BY priority, position`, org)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var result []model.Rule
	for rows.Next() {
		var (
			r                     model.Rule
			keywords              pq.StringArray
			regex, hint, merchant sql.NullString
			catID, catOther       sql.NullString
			acctID, acctOther     sql.NullString
			minAmount, maxAmount  decimal.NullDecimal
		)
		if err := rows.Scan(
			&r.ID, &r.OrganizationID, &r.Name, &keywords, &regex, &minAmount, &maxAmount,
			&hint, &catID, &catOther, &merchant,
			&acctID, &acctOther, &r.Priority, &r.Active,
		); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		r.Keywords = []string(keywords)
		r.Regex = regex.String
		if r.DirectionHint, err = directionHint(hint); err != nil {
			return nil, fmt.Errorf("rule %s: direction_hint: %w", r.ID, err)
		}
		r.Category = refFromColumns(catID, catOther)
		r.MerchantSet = merchant.String
		r.Account = refFromColumns(acctID, acctOther)
		if minAmount.Valid {
			r.MinAmount = &minAmount.Decimal
		}
		if maxAmount.Valid {
			r.MaxAmount = &maxAmount.Decimal
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// SaveRules inserts or replaces rules by id in one transaction. A replaced
// rule keeps its original position.
func (s *RuleStore) SaveRules(ctx context.Context, rules []model.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rule save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO categorization_rules (
    id, organization_id, name, keywords, regex, min_amount, max_amount,
    direction_hint, category_id, category_other, merchant_set,
    account_id, account_other, priority, active
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
    organization_id = EXCLUDED.organization_id,
    name            = EXCLUDED.name,
    keywords        = EXCLUDED.keywords,
    regex           = EXCLUDED.regex,
    min_amount      = EXCLUDED.min_amount,
    max_amount      = EXCLUDED.max_amount,
    direction_hint  = EXCLUDED.direction_hint,
    category_id     = EXCLUDED.category_id,
    category_other  = EXCLUDED.category_other,
    merchant_set    = EXCLUDED.merchant_set,
    account_id      = EXCLUDED.account_id,
    account_other   = EXCLUDED.account_other,
    priority        = EXCLUDED.priority,
    active          = EXCLUDED.active`)
	if err != nil {
		return fmt.Errorf("preparing rule save: %w", err)
	}
	defer stmt.Close()

	for _, r := range rules {
		catID, catOther := refColumns(r.Category)
		acctID, acctOther := refColumns(r.Account)
		keywords := r.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		_, err := stmt.ExecContext(ctx,
			r.ID, r.OrganizationID, r.Name, pq.Array(keywords), nullString(r.Regex),
			nullDecimal(r.MinAmount), nullDecimal(r.MaxAmount),
			nullString(string(r.DirectionHint)), catID, catOther, nullString(r.MerchantSet),
			acctID, acctOther, r.Priority, r.Active,
		)
		if err != nil {
			return fmt.Errorf("saving rule %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rules: %w", err)
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
