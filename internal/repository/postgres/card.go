package postgres

import (
	"context"
	"database/sql"

	"cardguard/internal/domain"
	"cardguard/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type CardRepository struct {
	db *sqlx.DB
}

func NewCardRepository(db *sqlx.DB) *CardRepository {
	return &CardRepository{db: db}
}

func (r *CardRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	var card domain.Card
	query := `
		SELECT
			id, citizen_id, card_type_id, card_number, current_balance,
			monthly_limit, status, issue_date, expiry_date, last_used_at, created_at
		FROM cards WHERE id = $1
	`

	err := r.db.GetContext(ctx, &card, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrAccountNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find card")
	}

	return &card, nil
}
