// Seeding tool for local development: creates the reference data the
// compliance pipeline resolves on every submission (card types, citizens,
// cards, vendors) plus a starter rule set. Safe to re-run; every insert
// is keyed and skipped when the row already exists.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"cardguard/internal/domain"
	"cardguard/pkg/config"
	"cardguard/pkg/logger"
)

// Fixed IDs so re-runs and local scripts can reference seeded rows.
var (
	foodCardTypeID    = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	generalCardTypeID = uuid.MustParse("11111111-1111-1111-1111-222222222222")
	citizenID         = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	cardID            = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	groceryVendorID   = uuid.MustParse("44444444-4444-4444-4444-444444444444")
	electronicsID     = uuid.MustParse("44444444-4444-4444-4444-555555555555")
)

func main() {
	_ = godotenv.Load()

	log := logger.New("seed")
	cfg := config.Load()
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required", nil)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	ctx := context.Background()

	seedCardTypes(ctx, db, log)
	seedCitizens(ctx, db, log)
	seedCards(ctx, db, log)
	seedVendors(ctx, db, log)
	seedRules(ctx, db, log)

	fmt.Println("OK: reference data and rules seeded")
}

func exec(ctx context.Context, db *sqlx.DB, log logger.Logger, what, query string, args ...interface{}) {
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		log.Fatal("Seed failed", map[string]interface{}{"step": what, "error": err.Error()})
	}
}

func seedCardTypes(ctx context.Context, db *sqlx.DB, log logger.Logger) {
	query := `
		INSERT INTO card_types (id, type_name, description, default_monthly_limit, allowed_categories, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	exec(ctx, db, log, "card_types", query,
		foodCardTypeID, "food_assistance", "Monthly food assistance card",
		decimal.NewFromInt(1000), domain.StringList{"groceries", "pharmacy"})
	exec(ctx, db, log, "card_types", query,
		generalCardTypeID, "general_assistance", "General purpose assistance card",
		decimal.NewFromInt(2000), domain.StringList{})
}

func seedCitizens(ctx context.Context, db *sqlx.DB, log logger.Logger) {
	query := `
		INSERT INTO citizens (id, full_name, national_id, city, phone_number, email, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	exec(ctx, db, log, "citizens", query,
		citizenID, "Jane Citizen", "NID-0001", "Springfield", "+100000001", "jane@example.com")
}

func seedCards(ctx context.Context, db *sqlx.DB, log logger.Logger) {
	query := `
		INSERT INTO cards (id, citizen_id, card_type_id, card_number, current_balance, monthly_limit, status, issue_date, expiry_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', $7, $8, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	now := time.Now().UTC()
	exec(ctx, db, log, "cards", query,
		cardID, citizenID, foodCardTypeID, "5000-0000-0000-0001",
		decimal.NewFromInt(500), decimal.NewFromInt(1000),
		now, now.AddDate(2, 0, 0))
}

func seedVendors(ctx context.Context, db *sqlx.DB, log logger.Logger) {
	query := `
		INSERT INTO vendors (id, vendor_name, category, city, address, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO NOTHING
	`
	exec(ctx, db, log, "vendors", query,
		groceryVendorID, "Springfield Grocers", "groceries", "Springfield", "1 Market St")
	exec(ctx, db, log, "vendors", query,
		electronicsID, "Gadget World", "electronics", "Springfield", "2 High St")
}

func seedRules(ctx context.Context, db *sqlx.DB, log logger.Logger) {
	query := `
		INSERT INTO transaction_rules (id, rule_name, description, rule_type, expression, severity, is_active, applies_to_card_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, NOW())
		ON CONFLICT (id) DO NOTHING
	`

	rules := []struct {
		id          uuid.UUID
		name        string
		description string
		ruleType    domain.RuleType
		expression  string
		severity    domain.Severity
		cardType    *uuid.UUID
	}{
		{
			id:          uuid.MustParse("55555555-5555-5555-5555-111111111111"),
			name:        "monthly_spending_limit",
			description: "Flags spending beyond the card's monthly limit",
			ruleType:    domain.RuleTypeSpendingLimit,
			expression:  `{}`,
			severity:    domain.SeverityMedium,
		},
		{
			id:          uuid.MustParse("55555555-5555-5555-5555-222222222222"),
			name:        "food_card_categories",
			description: "Food assistance cards may only buy allowed categories",
			ruleType:    domain.RuleTypeCategoryRestriction,
			expression:  `{"allowed_categories": ["groceries", "pharmacy"]}`,
			severity:    domain.SeverityHigh,
			cardType:    &foodCardTypeID,
		},
		{
			id:          uuid.MustParse("55555555-5555-5555-5555-333333333333"),
			name:        "rapid_fire_purchases",
			description: "Rejects bursts of transactions on one card",
			ruleType:    domain.RuleTypeVelocityCheck,
			expression:  `{"max_count": 5, "window_seconds": 600}`,
			severity:    domain.SeverityCritical,
		},
		{
			id:          uuid.MustParse("55555555-5555-5555-5555-444444444444"),
			name:        "out_of_city_usage",
			description: "Flags usage outside the citizen's registered city",
			ruleType:    domain.RuleTypeGeoRestriction,
			expression:  `{"allowed_cities": []}`,
			severity:    domain.SeverityLow,
		},
	}

	for _, r := range rules {
		exec(ctx, db, log, "transaction_rules", query,
			r.id, r.name, r.description, r.ruleType, r.expression, r.severity, r.cardType)
	}
}
