package postgres

import (
	"context"
	"database/sql"
	"time"

	"cardguard/internal/domain"
	"cardguard/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `
		SELECT
			id, card_id, vendor_id, amount, COALESCE(city, '') AS city,
			transaction_type, previous_balance, new_balance, status,
			COALESCE(status_reason, '') AS status_reason, is_fraud_suspected,
			COALESCE(rule_violations, '') AS rule_violations,
			transaction_date, created_at
		FROM transactions WHERE id = $1
	`

	err := r.db.GetContext(ctx, &tx, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find transaction")
	}

	return &tx, nil
}

// SaveOutcome persists one pipeline decision atomically: the transaction
// row, its flags, the balance update, the history entry and any alert
// either all commit or none do.
func (r *TransactionRepository) SaveOutcome(ctx context.Context, outcome *domain.TransactionOutcome) error {
	dbTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer dbTx.Rollback()

	if err := insertTransaction(ctx, dbTx, outcome.Transaction); err != nil {
		return err
	}

	for _, flag := range outcome.Flags {
		if err := insertFlag(ctx, dbTx, flag); err != nil {
			return err
		}
	}

	if outcome.Balance != nil {
		if err := applyBalance(ctx, dbTx, outcome.Balance); err != nil {
			return err
		}
	}

	if outcome.History != nil {
		if err := insertHistory(ctx, dbTx, outcome.History); err != nil {
			return err
		}
	}

	if outcome.Alert != nil {
		if err := insertAlert(ctx, dbTx, outcome.Alert); err != nil {
			return err
		}
	}

	return errors.Wrap(dbTx.Commit(), "failed to commit transaction outcome")
}

func insertTransaction(ctx context.Context, dbTx *sqlx.Tx, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, card_id, vendor_id, amount, city, transaction_type,
			previous_balance, new_balance, status, status_reason,
			is_fraud_suspected, rule_violations, transaction_date, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := dbTx.ExecContext(ctx, query,
		tx.ID, tx.CardID, tx.VendorID, tx.Amount, tx.City, tx.TransactionType,
		tx.PreviousBalance, tx.NewBalance, tx.Status, tx.StatusReason,
		tx.IsFraudSuspected, tx.RuleViolations, tx.TransactionDate, tx.CreatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return errors.ErrDuplicateTransaction
		}
		return errors.Wrap(err, "failed to insert transaction")
	}

	return nil
}

func insertFlag(ctx context.Context, dbTx *sqlx.Tx, flag *domain.Flag) error {
	query := `
		INSERT INTO flags (
			id, transaction_id, rule_id, card_id, violation_date,
			violation_detail, severity, resolved
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := dbTx.ExecContext(ctx, query,
		flag.ID, flag.TransactionID, flag.RuleID, flag.CardID,
		flag.ViolationDate, flag.ViolationDetail, flag.Severity, flag.Resolved,
	)
	return errors.Wrap(err, "failed to insert flag")
}

func applyBalance(ctx context.Context, dbTx *sqlx.Tx, update *domain.BalanceUpdate) error {
	query := `UPDATE cards SET current_balance = $1, last_used_at = $2 WHERE id = $3`

	res, err := dbTx.ExecContext(ctx, query, update.NewBalance, update.UsedAt, update.CardID)
	if err != nil {
		return errors.Wrap(err, "failed to update card balance")
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return errors.ErrAccountNotFound
	}
	return nil
}

func insertHistory(ctx context.Context, dbTx *sqlx.Tx, h *domain.BalanceHistory) error {
	query := `
		INSERT INTO balance_history (
			id, card_id, citizen_id, transaction_id, old_balance, new_balance, logged_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := dbTx.ExecContext(ctx, query,
		h.ID, h.CardID, h.CitizenID, h.TransactionID, h.OldBalance, h.NewBalance, h.LoggedAt,
	)
	return errors.Wrap(err, "failed to insert balance history")
}

func insertAlert(ctx context.Context, dbTx *sqlx.Tx, a *domain.Alert) error {
	query := `
		INSERT INTO alerts (
			id, citizen_id, alert_type, message, is_sent, alert_date
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := dbTx.ExecContext(ctx, query,
		a.ID, a.CitizenID, a.AlertType, a.Message, a.IsSent, a.AlertDate,
	)
	return errors.Wrap(err, "failed to insert alert")
}

// MonthToDateSpending sums completed debits on the card for the calendar
// month containing at.
func (r *TransactionRepository) MonthToDateSpending(ctx context.Context, cardID uuid.UUID, at time.Time) (decimal.Decimal, error) {
	from := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	var total decimal.NullDecimal
	query := `
		SELECT SUM(amount)
		FROM transactions
		WHERE card_id = $1
		  AND transaction_type IN ('purchase', 'payment')
		  AND status = 'completed'
		  AND transaction_date >= $2
		  AND transaction_date < $3
	`

	err := r.db.GetContext(ctx, &total, query, cardID, from, to)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to sum month-to-date spending")
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// RecentTimestamps returns transaction dates on the card since the given
// instant, newest first. Failed rows count too: a rejected burst is still
// a burst.
func (r *TransactionRepository) RecentTimestamps(ctx context.Context, cardID uuid.UUID, since time.Time) ([]time.Time, error) {
	var stamps []time.Time
	query := `
		SELECT transaction_date
		FROM transactions
		WHERE card_id = $1 AND transaction_date >= $2
		ORDER BY transaction_date DESC
	`

	err := r.db.SelectContext(ctx, &stamps, query, cardID, since)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recent transaction timestamps")
	}

	return stamps, nil
}
