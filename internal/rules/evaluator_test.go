package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardguard/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParse(t *testing.T) {
	t.Run("spending limit defaults to strict operator", func(t *testing.T) {
		expr, err := Parse(domain.RuleTypeSpendingLimit, `{}`)
		require.NoError(t, err)
		assert.Equal(t, OpGreaterThan, expr.Operator)
		assert.True(t, expr.Threshold.IsZero())
	})

	t.Run("spending limit with explicit threshold", func(t *testing.T) {
		expr, err := Parse(domain.RuleTypeSpendingLimit, `{"operator":">=","threshold":"750.50"}`)
		require.NoError(t, err)
		assert.Equal(t, OpGreaterThanOrEqual, expr.Operator)
		assert.True(t, expr.Threshold.Equal(dec("750.50")))
	})

	t.Run("velocity check requires window and count", func(t *testing.T) {
		_, err := Parse(domain.RuleTypeVelocityCheck, `{"max_count":3}`)
		assert.Error(t, err)

		expr, err := Parse(domain.RuleTypeVelocityCheck, `{"max_count":3,"window_seconds":60}`)
		require.NoError(t, err)
		assert.Equal(t, 3, expr.MaxCount)
		assert.Equal(t, time.Minute, expr.Window)
	})

	t.Run("category restriction requires allow list", func(t *testing.T) {
		_, err := Parse(domain.RuleTypeCategoryRestriction, `{}`)
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := Parse(domain.RuleTypeSpendingLimit, `{not json`)
		assert.Error(t, err)
	})

	t.Run("unsupported operator", func(t *testing.T) {
		_, err := Parse(domain.RuleTypeSpendingLimit, `{"operator":"<"}`)
		assert.Error(t, err)
	})

	t.Run("negative threshold", func(t *testing.T) {
		_, err := Parse(domain.RuleTypeSpendingLimit, `{"threshold":"-10"}`)
		assert.Error(t, err)
	})
}

func TestEvaluateSpendingLimit(t *testing.T) {
	expr, err := Parse(domain.RuleTypeSpendingLimit, `{}`)
	require.NoError(t, err)

	ctx := Context{
		MonthlyLimit:        dec("1000"),
		MonthToDateSpending: dec("600"),
	}

	t.Run("triggers when projected spending exceeds limit", func(t *testing.T) {
		v, err := Evaluate(expr, Input{Amount: dec("450"), TransactionType: domain.TransactionTypePurchase}, ctx)
		require.NoError(t, err)
		assert.True(t, v.Triggered)
		assert.Contains(t, v.Detail, "50") // overflow amount
	})

	t.Run("exact threshold is not a violation", func(t *testing.T) {
		v, err := Evaluate(expr, Input{Amount: dec("400"), TransactionType: domain.TransactionTypePurchase}, ctx)
		require.NoError(t, err)
		assert.False(t, v.Triggered)
	})

	t.Run("inclusive operator flags the boundary", func(t *testing.T) {
		inclusive, err := Parse(domain.RuleTypeSpendingLimit, `{"operator":">="}`)
		require.NoError(t, err)
		v, err := Evaluate(inclusive, Input{Amount: dec("400"), TransactionType: domain.TransactionTypePurchase}, ctx)
		require.NoError(t, err)
		assert.True(t, v.Triggered)
	})

	t.Run("deposits are exempt", func(t *testing.T) {
		v, err := Evaluate(expr, Input{Amount: dec("5000"), TransactionType: domain.TransactionTypeDeposit}, ctx)
		require.NoError(t, err)
		assert.False(t, v.Triggered)
	})

	t.Run("decimal amounts stay exact", func(t *testing.T) {
		fractional := Context{
			MonthlyLimit:        dec("100.00"),
			MonthToDateSpending: dec("99.99"),
		}
		v, err := Evaluate(expr, Input{Amount: dec("0.01"), TransactionType: domain.TransactionTypePurchase}, fractional)
		require.NoError(t, err)
		assert.False(t, v.Triggered, "99.99 + 0.01 equals the limit exactly")

		v, err = Evaluate(expr, Input{Amount: dec("0.02"), TransactionType: domain.TransactionTypePurchase}, fractional)
		require.NoError(t, err)
		assert.True(t, v.Triggered)
	})
}

func TestEvaluateCategoryRestriction(t *testing.T) {
	expr, err := Parse(domain.RuleTypeCategoryRestriction, `{"allowed_categories":["Food","Pharmacy"]}`)
	require.NoError(t, err)

	in := Input{Amount: dec("10"), TransactionType: domain.TransactionTypePurchase}

	t.Run("allowed by both rule and card type", func(t *testing.T) {
		v, err := Evaluate(expr, in, Context{VendorCategory: "Food", CardAllowedCategories: []string{"Food"}})
		require.NoError(t, err)
		assert.False(t, v.Triggered)
	})

	t.Run("rejected by rule allow list", func(t *testing.T) {
		v, err := Evaluate(expr, in, Context{VendorCategory: "Electronics"})
		require.NoError(t, err)
		assert.True(t, v.Triggered)
	})

	t.Run("rejected by card type allow list", func(t *testing.T) {
		v, err := Evaluate(expr, in, Context{VendorCategory: "Pharmacy", CardAllowedCategories: []string{"Food"}})
		require.NoError(t, err)
		assert.True(t, v.Triggered)
	})
}

func TestEvaluateVelocityCheck(t *testing.T) {
	expr, err := Parse(domain.RuleTypeVelocityCheck, `{"max_count":3,"window_seconds":60}`)
	require.NoError(t, err)

	now := time.Now()
	in := Input{Amount: dec("10"), TransactionType: domain.TransactionTypePurchase, Timestamp: now}

	t.Run("under the limit", func(t *testing.T) {
		ctx := Context{RecentTransactions: []time.Time{
			now.Add(-10 * time.Second),
			now.Add(-30 * time.Second),
		}}
		v, err := Evaluate(expr, in, ctx)
		require.NoError(t, err)
		assert.False(t, v.Triggered, "3 transactions in window equals the limit")
	})

	t.Run("over the limit", func(t *testing.T) {
		ctx := Context{RecentTransactions: []time.Time{
			now.Add(-5 * time.Second),
			now.Add(-15 * time.Second),
			now.Add(-45 * time.Second),
		}}
		v, err := Evaluate(expr, in, ctx)
		require.NoError(t, err)
		assert.True(t, v.Triggered)
	})

	t.Run("old transactions fall out of the window", func(t *testing.T) {
		ctx := Context{RecentTransactions: []time.Time{
			now.Add(-5 * time.Second),
			now.Add(-61 * time.Second),
			now.Add(-30 * time.Minute),
		}}
		v, err := Evaluate(expr, in, ctx)
		require.NoError(t, err)
		assert.False(t, v.Triggered)
	})
}

func TestEvaluateGeoRestriction(t *testing.T) {
	expr, err := Parse(domain.RuleTypeGeoRestriction, `{"allowed_cities":["Capital City"]}`)
	require.NoError(t, err)

	ctx := Context{RegisteredCity: "Springfield"}

	cases := []struct {
		name      string
		city      string
		triggered bool
	}{
		{"registered city passes", "Springfield", false},
		{"allow-listed city passes", "Capital City", false},
		{"unknown city triggers", "Shelbyville", true},
		{"missing city passes", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Evaluate(expr, Input{City: tc.city, TransactionType: domain.TransactionTypePurchase}, ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.triggered, v.Triggered)
		})
	}
}

func TestEvaluateCardTypeRestriction(t *testing.T) {
	expr, err := Parse(domain.RuleTypeCardTypeRestriction, `{"denied_categories":["Tobacco"],"threshold":"200"}`)
	require.NoError(t, err)

	t.Run("denied category", func(t *testing.T) {
		v, err := Evaluate(expr, Input{Amount: dec("5"), TransactionType: domain.TransactionTypePurchase},
			Context{VendorCategory: "Tobacco"})
		require.NoError(t, err)
		assert.True(t, v.Triggered)
	})

	t.Run("amount ceiling", func(t *testing.T) {
		v, err := Evaluate(expr, Input{Amount: dec("200.01"), TransactionType: domain.TransactionTypePurchase},
			Context{VendorCategory: "Food"})
		require.NoError(t, err)
		assert.True(t, v.Triggered)

		v, err = Evaluate(expr, Input{Amount: dec("200"), TransactionType: domain.TransactionTypePurchase},
			Context{VendorCategory: "Food"})
		require.NoError(t, err)
		assert.False(t, v.Triggered)
	})
}

func TestEvaluateUnknownType(t *testing.T) {
	_, err := Evaluate(Expression{Type: "mystery"}, Input{}, Context{})
	assert.Error(t, err)
}
