// Package catalog holds the active compliance rules, parsed and ready
// for evaluation.
package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"cardguard/internal/domain"
	"cardguard/internal/rules"
	"cardguard/pkg/logger"
)

// RuleSource supplies catalog contents, typically the postgres repository.
type RuleSource interface {
	FindActive(ctx context.Context) ([]*domain.TransactionRule, error)
}

// ActiveRule pairs a stored rule with its parsed expression.
type ActiveRule struct {
	Rule *domain.TransactionRule
	Expr rules.Expression
}

// Catalog is a read-mostly snapshot of the active rules, shared across
// concurrent evaluations. Reload swaps the snapshot after rule edits.
type Catalog struct {
	source RuleSource
	logger logger.Logger

	mu     sync.RWMutex
	active []*ActiveRule
}

func New(source RuleSource, log logger.Logger) *Catalog {
	return &Catalog{
		source: source,
		logger: log,
	}
}

// Reload fetches the active rules, parses every expression once and swaps
// the in-memory snapshot. A rule with a malformed expression is logged and
// skipped so one bad row never halts transaction processing.
func (c *Catalog) Reload(ctx context.Context) error {
	stored, err := c.source.FindActive(ctx)
	if err != nil {
		return err
	}

	parsed := make([]*ActiveRule, 0, len(stored))
	for _, rule := range stored {
		expr, err := rules.Parse(rule.RuleType, rule.Expression)
		if err != nil {
			c.logger.Error("Skipping malformed rule", map[string]interface{}{
				"rule_id":   rule.ID,
				"rule_name": rule.RuleName,
				"error":     err.Error(),
			})
			continue
		}
		parsed = append(parsed, &ActiveRule{Rule: rule, Expr: expr})
	}

	// Higher-severity violations report first; rule id breaks ties so the
	// ordering is stable across reloads.
	sort.Slice(parsed, func(i, j int) bool {
		ri, rj := parsed[i].Rule, parsed[j].Rule
		if ri.Severity.Rank() != rj.Severity.Rank() {
			return ri.Severity.Rank() > rj.Severity.Rank()
		}
		return ri.ID.String() < rj.ID.String()
	})

	c.mu.Lock()
	c.active = parsed
	c.mu.Unlock()

	c.logger.Info("Rule catalog loaded", map[string]interface{}{
		"total":   len(stored),
		"active":  len(parsed),
		"skipped": len(stored) - len(parsed),
	})

	return nil
}

// ActiveRulesFor returns the rules that apply to the given card type:
// globally scoped rules plus rules scoped to exactly that type, ordered by
// descending severity then ascending rule id. The returned slice must not
// be mutated.
func (c *Catalog) ActiveRulesFor(cardTypeID uuid.UUID) []*ActiveRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*ActiveRule, 0, len(c.active))
	for _, ar := range c.active {
		scope := ar.Rule.AppliesToCardType
		if scope == nil || *scope == cardTypeID {
			out = append(out, ar)
		}
	}
	return out
}

// Size reports how many rules the current snapshot holds.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active)
}
