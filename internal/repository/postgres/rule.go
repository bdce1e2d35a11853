package postgres

import (
	"context"

	"cardguard/internal/domain"
	"cardguard/pkg/errors"

	"github.com/jmoiron/sqlx"
)

type RuleRepository struct {
	db *sqlx.DB
}

func NewRuleRepository(db *sqlx.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// FindActive returns the enabled rules for the catalog to parse. Ordering
// here is only for stable logs; the catalog sorts by severity itself.
func (r *RuleRepository) FindActive(ctx context.Context) ([]*domain.TransactionRule, error) {
	var rules []*domain.TransactionRule
	query := `
		SELECT
			id, rule_name, COALESCE(description, '') AS description, rule_type,
			expression, severity, is_active, applies_to_card_type, created_at
		FROM transaction_rules
		WHERE is_active = TRUE
		ORDER BY created_at ASC
	`

	err := r.db.SelectContext(ctx, &rules, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load active rules")
	}

	return rules, nil
}
