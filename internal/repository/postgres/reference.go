package postgres

import (
	"context"
	"database/sql"

	"cardguard/internal/domain"
	"cardguard/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ReferenceRepository reads the citizen, vendor and card-type reference
// data the pipeline resolves on every submission.
type ReferenceRepository struct {
	db *sqlx.DB
}

func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

func (r *ReferenceRepository) FindCitizen(ctx context.Context, id uuid.UUID) (*domain.Citizen, error) {
	var citizen domain.Citizen
	query := `
		SELECT
			id, full_name, national_id, COALESCE(city, '') AS city,
			COALESCE(phone_number, '') AS phone_number, COALESCE(email, '') AS email,
			is_active, created_at
		FROM citizens WHERE id = $1
	`

	err := r.db.GetContext(ctx, &citizen, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrCitizenNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find citizen")
	}

	return &citizen, nil
}

func (r *ReferenceRepository) FindVendor(ctx context.Context, id uuid.UUID) (*domain.Vendor, error) {
	var vendor domain.Vendor
	query := `
		SELECT
			id, vendor_name, category, COALESCE(city, '') AS city,
			COALESCE(address, '') AS address, is_active
		FROM vendors WHERE id = $1
	`

	err := r.db.GetContext(ctx, &vendor, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrVendorNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find vendor")
	}

	return &vendor, nil
}

func (r *ReferenceRepository) FindCardType(ctx context.Context, id uuid.UUID) (*domain.CardType, error) {
	var cardType domain.CardType
	query := `
		SELECT
			id, type_name, COALESCE(description, '') AS description,
			default_monthly_limit, allowed_categories, is_active, created_at
		FROM card_types WHERE id = $1
	`

	err := r.db.GetContext(ctx, &cardType, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrCardTypeNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find card type")
	}

	return &cardType, nil
}
