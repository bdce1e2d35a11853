package rules

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cardguard/internal/domain"
)

// Comparison operators accepted by threshold rules. The default is the
// strict form: a transaction landing exactly on the threshold passes.
const (
	OpGreaterThan        = ">"
	OpGreaterThanOrEqual = ">="
)

// Expression is the parsed form of a stored rule. Rules persist their
// parameters as a JSON document; the catalog parses each one exactly once
// at load time so nothing is re-parsed per transaction. Which fields are
// meaningful depends on Type.
type Expression struct {
	Type domain.RuleType

	// SpendingLimit / CardTypeRestriction
	Operator  string
	Threshold decimal.Decimal

	// CategoryRestriction
	AllowedCategories []string

	// CardTypeRestriction
	DeniedCategories []string

	// VelocityCheck
	MaxCount int
	Window   time.Duration

	// GeoRestriction. Empty means only the citizen's registered city.
	AllowedCities []string
}

// rawExpression mirrors the JSON document stored on a rule row.
type rawExpression struct {
	Operator          string   `json:"operator,omitempty"`
	Threshold         *string  `json:"threshold,omitempty"`
	AllowedCategories []string `json:"allowed_categories,omitempty"`
	DeniedCategories  []string `json:"denied_categories,omitempty"`
	MaxCount          int      `json:"max_count,omitempty"`
	WindowSeconds     int      `json:"window_seconds,omitempty"`
	AllowedCities     []string `json:"allowed_cities,omitempty"`
}

// Parse validates and converts a stored rule expression. Errors here make
// the catalog skip the rule; they never block transaction processing.
func Parse(ruleType domain.RuleType, expression string) (Expression, error) {
	var raw rawExpression
	if expression != "" {
		if err := json.Unmarshal([]byte(expression), &raw); err != nil {
			return Expression{}, fmt.Errorf("malformed rule expression: %w", err)
		}
	}

	expr := Expression{Type: ruleType}

	op := raw.Operator
	if op == "" {
		op = OpGreaterThan
	}
	if op != OpGreaterThan && op != OpGreaterThanOrEqual {
		return Expression{}, fmt.Errorf("unsupported operator %q", raw.Operator)
	}
	expr.Operator = op

	if raw.Threshold != nil {
		threshold, err := decimal.NewFromString(*raw.Threshold)
		if err != nil {
			return Expression{}, fmt.Errorf("invalid threshold %q: %w", *raw.Threshold, err)
		}
		if threshold.IsNegative() {
			return Expression{}, fmt.Errorf("threshold must not be negative")
		}
		expr.Threshold = threshold
	}

	switch ruleType {
	case domain.RuleTypeSpendingLimit:
		// Threshold optional: zero means use the card's own monthly limit.

	case domain.RuleTypeCategoryRestriction:
		if len(raw.AllowedCategories) == 0 {
			return Expression{}, fmt.Errorf("category restriction requires allowed_categories")
		}
		expr.AllowedCategories = raw.AllowedCategories

	case domain.RuleTypeVelocityCheck:
		if raw.MaxCount <= 0 {
			return Expression{}, fmt.Errorf("velocity check requires a positive max_count")
		}
		if raw.WindowSeconds <= 0 {
			return Expression{}, fmt.Errorf("velocity check requires a positive window_seconds")
		}
		expr.MaxCount = raw.MaxCount
		expr.Window = time.Duration(raw.WindowSeconds) * time.Second

	case domain.RuleTypeGeoRestriction:
		expr.AllowedCities = raw.AllowedCities

	case domain.RuleTypeCardTypeRestriction:
		if len(raw.DeniedCategories) == 0 && expr.Threshold.IsZero() {
			return Expression{}, fmt.Errorf("card type restriction requires denied_categories or a threshold")
		}
		expr.DeniedCategories = raw.DeniedCategories

	default:
		return Expression{}, fmt.Errorf("unknown rule type %q", ruleType)
	}

	return expr, nil
}

// exceeds applies the expression's comparison operator.
func (e Expression) exceeds(value, limit decimal.Decimal) bool {
	if e.Operator == OpGreaterThanOrEqual {
		return value.GreaterThanOrEqual(limit)
	}
	return value.GreaterThan(limit)
}
