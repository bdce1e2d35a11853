// Package rules scores transactions against parsed compliance rules.
package rules

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"cardguard/internal/domain"
	"cardguard/pkg/errors"
)

// Input is the transaction under evaluation.
type Input struct {
	Amount          decimal.Decimal
	TransactionType domain.TransactionType
	City            string
	Timestamp       time.Time
}

// Context is the account state the evaluator scores against. It is
// assembled once per submission by the pipeline so evaluation itself
// touches no storage.
type Context struct {
	MonthlyLimit        decimal.Decimal
	MonthToDateSpending decimal.Decimal
	// RecentTransactions holds timestamps of the card's prior transactions
	// within the pipeline's lookback window, newest or oldest order both
	// fine. Velocity rules count inside their own sub-window.
	RecentTransactions []time.Time
	VendorCategory     string
	// CardAllowedCategories is the card type's whitelist; empty means
	// unrestricted at the type level.
	CardAllowedCategories []string
	RegisteredCity        string
}

// Verdict is the outcome of scoring one rule against one transaction.
type Verdict struct {
	Triggered bool
	Detail    string
}

// Evaluate scores a single (transaction, context, rule) triple. It is a
// pure function; deposits and top-ups are exempt from spending rules.
func Evaluate(expr Expression, in Input, ctx Context) (Verdict, error) {
	switch expr.Type {
	case domain.RuleTypeSpendingLimit:
		return evalSpendingLimit(expr, in, ctx), nil
	case domain.RuleTypeCategoryRestriction:
		return evalCategoryRestriction(expr, in, ctx), nil
	case domain.RuleTypeVelocityCheck:
		return evalVelocityCheck(expr, in, ctx), nil
	case domain.RuleTypeGeoRestriction:
		return evalGeoRestriction(expr, in, ctx), nil
	case domain.RuleTypeCardTypeRestriction:
		return evalCardTypeRestriction(expr, in, ctx), nil
	default:
		return Verdict{}, errors.Wrap(errors.ErrRuleEvaluation, fmt.Sprintf("unknown rule type %q", expr.Type))
	}
}

func evalSpendingLimit(expr Expression, in Input, ctx Context) Verdict {
	if !in.TransactionType.IsDebit() {
		return Verdict{}
	}

	limit := expr.Threshold
	if limit.IsZero() {
		limit = ctx.MonthlyLimit
	}
	if limit.IsZero() {
		return Verdict{}
	}

	projected := ctx.MonthToDateSpending.Add(in.Amount)
	if !expr.exceeds(projected, limit) {
		return Verdict{}
	}

	overflow := projected.Sub(limit)
	return Verdict{
		Triggered: true,
		Detail: fmt.Sprintf("monthly spending %s exceeds limit %s by %s",
			projected.String(), limit.String(), overflow.String()),
	}
}

func evalCategoryRestriction(expr Expression, in Input, ctx Context) Verdict {
	if !in.TransactionType.IsDebit() {
		return Verdict{}
	}

	// Both the rule's allow-list and the card type's allow-list must pass.
	if !contains(expr.AllowedCategories, ctx.VendorCategory) {
		return Verdict{
			Triggered: true,
			Detail:    fmt.Sprintf("vendor category %q is not permitted by this rule", ctx.VendorCategory),
		}
	}
	if len(ctx.CardAllowedCategories) > 0 && !contains(ctx.CardAllowedCategories, ctx.VendorCategory) {
		return Verdict{
			Triggered: true,
			Detail:    fmt.Sprintf("vendor category %q is not permitted for this card type", ctx.VendorCategory),
		}
	}
	return Verdict{}
}

func evalVelocityCheck(expr Expression, in Input, ctx Context) Verdict {
	cutoff := in.Timestamp.Add(-expr.Window)

	// Count prior transactions inside the rule's window plus the one
	// under evaluation.
	count := 1
	for _, ts := range ctx.RecentTransactions {
		if ts.After(cutoff) && !ts.After(in.Timestamp) {
			count++
		}
	}

	if count <= expr.MaxCount {
		return Verdict{}
	}
	return Verdict{
		Triggered: true,
		Detail: fmt.Sprintf("%d transactions within %s exceeds limit of %d",
			count, expr.Window, expr.MaxCount),
	}
}

func evalGeoRestriction(expr Expression, in Input, ctx Context) Verdict {
	if in.City == "" || in.City == ctx.RegisteredCity {
		return Verdict{}
	}
	if contains(expr.AllowedCities, in.City) {
		return Verdict{}
	}
	return Verdict{
		Triggered: true,
		Detail: fmt.Sprintf("transaction city %q differs from registered city %q",
			in.City, ctx.RegisteredCity),
	}
}

func evalCardTypeRestriction(expr Expression, in Input, ctx Context) Verdict {
	if !in.TransactionType.IsDebit() {
		return Verdict{}
	}

	if contains(expr.DeniedCategories, ctx.VendorCategory) {
		return Verdict{
			Triggered: true,
			Detail:    fmt.Sprintf("vendor category %q is disallowed for this card type", ctx.VendorCategory),
		}
	}
	if !expr.Threshold.IsZero() && expr.exceeds(in.Amount, expr.Threshold) {
		return Verdict{
			Triggered: true,
			Detail: fmt.Sprintf("amount %s exceeds per-transaction ceiling %s for this card type",
				in.Amount.String(), expr.Threshold.String()),
		}
	}
	return Verdict{}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
