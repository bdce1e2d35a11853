package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cardguard/internal/domain"
	"cardguard/pkg/logger"
)

type MockRuleSource struct {
	mock.Mock
}

func (m *MockRuleSource) FindActive(ctx context.Context) ([]*domain.TransactionRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TransactionRule), args.Error(1)
}

func rule(name string, ruleType domain.RuleType, expr string, severity domain.Severity, scope *uuid.UUID) *domain.TransactionRule {
	return &domain.TransactionRule{
		ID:                uuid.New(),
		RuleName:          name,
		RuleType:          ruleType,
		Expression:        expr,
		Severity:          severity,
		IsActive:          true,
		AppliesToCardType: scope,
	}
}

func TestReloadParsesAndOrders(t *testing.T) {
	source := new(MockRuleSource)
	cat := New(source, logger.NewNop())
	ctx := context.Background()

	low := rule("limit", domain.RuleTypeSpendingLimit, `{}`, domain.SeverityLow, nil)
	critical := rule("velocity", domain.RuleTypeVelocityCheck, `{"max_count":3,"window_seconds":60}`, domain.SeverityCritical, nil)
	medium := rule("geo", domain.RuleTypeGeoRestriction, `{}`, domain.SeverityMedium, nil)

	source.On("FindActive", ctx).Return([]*domain.TransactionRule{low, critical, medium}, nil)

	require.NoError(t, cat.Reload(ctx))
	require.Equal(t, 3, cat.Size())

	ordered := cat.ActiveRulesFor(uuid.New())
	require.Len(t, ordered, 3)
	assert.Equal(t, critical.ID, ordered[0].Rule.ID)
	assert.Equal(t, medium.ID, ordered[1].Rule.ID)
	assert.Equal(t, low.ID, ordered[2].Rule.ID)
}

func TestReloadSkipsMalformedRules(t *testing.T) {
	source := new(MockRuleSource)
	cat := New(source, logger.NewNop())
	ctx := context.Background()

	good := rule("limit", domain.RuleTypeSpendingLimit, `{}`, domain.SeverityHigh, nil)
	bad := rule("broken", domain.RuleTypeVelocityCheck, `{"max_count":0}`, domain.SeverityCritical, nil)

	source.On("FindActive", ctx).Return([]*domain.TransactionRule{good, bad}, nil)

	require.NoError(t, cat.Reload(ctx))
	assert.Equal(t, 1, cat.Size())
	assert.Equal(t, good.ID, cat.ActiveRulesFor(uuid.New())[0].Rule.ID)
}

func TestActiveRulesForFiltersByCardType(t *testing.T) {
	source := new(MockRuleSource)
	cat := New(source, logger.NewNop())
	ctx := context.Background()

	foodCardType := uuid.New()
	otherCardType := uuid.New()

	global := rule("global", domain.RuleTypeSpendingLimit, `{}`, domain.SeverityMedium, nil)
	scoped := rule("scoped", domain.RuleTypeCategoryRestriction, `{"allowed_categories":["Food"]}`, domain.SeverityMedium, &foodCardType)

	source.On("FindActive", ctx).Return([]*domain.TransactionRule{global, scoped}, nil)
	require.NoError(t, cat.Reload(ctx))

	assert.Len(t, cat.ActiveRulesFor(foodCardType), 2)

	forOther := cat.ActiveRulesFor(otherCardType)
	require.Len(t, forOther, 1)
	assert.Equal(t, global.ID, forOther[0].Rule.ID)
}

func TestReloadSwapsSnapshot(t *testing.T) {
	source := new(MockRuleSource)
	cat := New(source, logger.NewNop())
	ctx := context.Background()

	first := rule("first", domain.RuleTypeSpendingLimit, `{}`, domain.SeverityLow, nil)
	source.On("FindActive", ctx).Return([]*domain.TransactionRule{first}, nil).Once()
	require.NoError(t, cat.Reload(ctx))
	require.Equal(t, 1, cat.Size())

	second := rule("second", domain.RuleTypeGeoRestriction, `{}`, domain.SeverityLow, nil)
	source.On("FindActive", ctx).Return([]*domain.TransactionRule{first, second}, nil).Once()
	require.NoError(t, cat.Reload(ctx))
	assert.Equal(t, 2, cat.Size())
}
