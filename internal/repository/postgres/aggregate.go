package postgres

import (
	"context"
	"time"

	"cardguard/internal/domain"
	"cardguard/pkg/errors"

	"github.com/jmoiron/sqlx"
)

// AggregateRepository backs the monthly recompute. The grouped reads scan
// the ledger for one closed window; the Replace writes upsert one rollup
// key each so a failed key never takes its siblings down with it.
type AggregateRepository struct {
	db *sqlx.DB
}

func NewAggregateRepository(db *sqlx.DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

func (r *AggregateRepository) ViolationCounts(ctx context.Context, from, to time.Time) ([]*domain.MonthlyViolation, error) {
	var rows []*domain.MonthlyViolation
	query := `
		SELECT c.citizen_id, f.card_id, COUNT(*) AS violation_count
		FROM flags f
		JOIN cards c ON c.id = f.card_id
		WHERE f.violation_date >= $1 AND f.violation_date < $2
		GROUP BY c.citizen_id, f.card_id
	`

	err := r.db.SelectContext(ctx, &rows, query, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count violations")
	}

	return rows, nil
}

func (r *AggregateRepository) CardSpending(ctx context.Context, from, to time.Time) ([]*domain.MonthlyCardSpending, error) {
	var rows []*domain.MonthlyCardSpending
	query := `
		SELECT card_id, SUM(amount) AS spending_amount
		FROM transactions
		WHERE transaction_type IN ('purchase', 'payment')
		  AND status = 'completed'
		  AND transaction_date >= $1 AND transaction_date < $2
		GROUP BY card_id
	`

	err := r.db.SelectContext(ctx, &rows, query, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum card spending")
	}

	return rows, nil
}

func (r *AggregateRepository) VendorSpending(ctx context.Context, from, to time.Time) ([]*domain.MonthlyVendorSpending, error) {
	var rows []*domain.MonthlyVendorSpending
	query := `
		SELECT card_id, vendor_id, SUM(amount) AS spending_amount
		FROM transactions
		WHERE transaction_type IN ('purchase', 'payment')
		  AND status = 'completed'
		  AND transaction_date >= $1 AND transaction_date < $2
		GROUP BY card_id, vendor_id
	`

	err := r.db.SelectContext(ctx, &rows, query, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum vendor spending")
	}

	return rows, nil
}

// CreditTotals splits each card's credits for the window into the portion
// covered by its monthly limit and the bonus beyond it.
func (r *AggregateRepository) CreditTotals(ctx context.Context, from, to time.Time) ([]*domain.MonthlyCredit, error) {
	var rows []*domain.MonthlyCredit
	query := `
		SELECT
			t.card_id,
			c.citizen_id,
			LEAST(SUM(t.amount), c.monthly_limit) AS limit_amount,
			GREATEST(SUM(t.amount) - c.monthly_limit, 0) AS bonus_amount,
			SUM(t.amount) AS total_amount
		FROM transactions t
		JOIN cards c ON c.id = t.card_id
		WHERE t.transaction_type IN ('deposit', 'topup')
		  AND t.status = 'completed'
		  AND t.transaction_date >= $1 AND t.transaction_date < $2
		GROUP BY t.card_id, c.citizen_id, c.monthly_limit
	`

	err := r.db.SelectContext(ctx, &rows, query, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sum credit totals")
	}

	return rows, nil
}

func (r *AggregateRepository) ReplaceViolation(ctx context.Context, row *domain.MonthlyViolation) error {
	query := `
		INSERT INTO monthly_violations (citizen_id, card_id, year, month, violation_count, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (citizen_id, card_id, year, month)
		DO UPDATE SET violation_count = EXCLUDED.violation_count, last_updated = EXCLUDED.last_updated
	`

	_, err := r.db.ExecContext(ctx, query,
		row.CitizenID, row.CardID, row.Year, row.Month, row.ViolationCount, row.LastUpdated,
	)
	return errors.Wrap(err, "failed to write monthly violation")
}

func (r *AggregateRepository) ReplaceCardSpending(ctx context.Context, row *domain.MonthlyCardSpending) error {
	query := `
		INSERT INTO monthly_card_spending (card_id, year, month, spending_amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (card_id, year, month)
		DO UPDATE SET spending_amount = EXCLUDED.spending_amount
	`

	_, err := r.db.ExecContext(ctx, query, row.CardID, row.Year, row.Month, row.SpendingAmount)
	return errors.Wrap(err, "failed to write monthly card spending")
}

func (r *AggregateRepository) ReplaceVendorSpending(ctx context.Context, row *domain.MonthlyVendorSpending) error {
	query := `
		INSERT INTO monthly_vendor_spending (card_id, vendor_id, year, month, spending_amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (card_id, vendor_id, year, month)
		DO UPDATE SET spending_amount = EXCLUDED.spending_amount
	`

	_, err := r.db.ExecContext(ctx, query,
		row.CardID, row.VendorID, row.Year, row.Month, row.SpendingAmount,
	)
	return errors.Wrap(err, "failed to write monthly vendor spending")
}

func (r *AggregateRepository) ReplaceCredit(ctx context.Context, row *domain.MonthlyCredit) error {
	query := `
		INSERT INTO monthly_credits (card_id, citizen_id, year, month, limit_amount, bonus_amount, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (card_id, year, month)
		DO UPDATE SET
			citizen_id = EXCLUDED.citizen_id,
			limit_amount = EXCLUDED.limit_amount,
			bonus_amount = EXCLUDED.bonus_amount,
			total_amount = EXCLUDED.total_amount,
			created_at = EXCLUDED.created_at
	`

	_, err := r.db.ExecContext(ctx, query,
		row.CardID, row.CitizenID, row.Year, row.Month,
		row.LimitAmount, row.BonusAmount, row.TotalAmount, row.CreatedAt,
	)
	return errors.Wrap(err, "failed to write monthly credit")
}

func (r *AggregateRepository) DeleteMonth(ctx context.Context, year, month int) error {
	for _, table := range []string{
		"monthly_violations",
		"monthly_credits",
		"monthly_card_spending",
		"monthly_vendor_spending",
	} {
		query := `DELETE FROM ` + table + ` WHERE year = $1 AND month = $2`
		if _, err := r.db.ExecContext(ctx, query, year, month); err != nil {
			return errors.Wrap(err, "failed to clear "+table)
		}
	}
	return nil
}
