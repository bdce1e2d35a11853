// Package aggregate recomputes the monthly rollup tables from the
// transaction ledger.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"cardguard/internal/domain"
	"cardguard/pkg/logger"
)

// Repository supplies grouped window queries and upserts for the rollup
// rows. Each Replace call runs in its own transaction so one bad key never
// poisons its siblings.
type Repository interface {
	ViolationCounts(ctx context.Context, from, to time.Time) ([]*domain.MonthlyViolation, error)
	CardSpending(ctx context.Context, from, to time.Time) ([]*domain.MonthlyCardSpending, error)
	VendorSpending(ctx context.Context, from, to time.Time) ([]*domain.MonthlyVendorSpending, error)
	CreditTotals(ctx context.Context, from, to time.Time) ([]*domain.MonthlyCredit, error)

	ReplaceViolation(ctx context.Context, row *domain.MonthlyViolation) error
	ReplaceCardSpending(ctx context.Context, row *domain.MonthlyCardSpending) error
	ReplaceVendorSpending(ctx context.Context, row *domain.MonthlyVendorSpending) error
	ReplaceCredit(ctx context.Context, row *domain.MonthlyCredit) error

	// DeleteMonth clears all rollup rows for the month so keys that no
	// longer exist in the ledger disappear on recompute.
	DeleteMonth(ctx context.Context, year, month int) error
}

// Metrics receives instrumentation events. May be nil.
type Metrics interface {
	RecordAggregation(duration time.Duration, keyFailures int)
}

type Service struct {
	repo    Repository
	logger  logger.Logger
	metrics Metrics
	// now is swappable for tests.
	now func() time.Time
}

func NewService(repo Repository, log logger.Logger, metrics Metrics) *Service {
	return &Service{
		repo:    repo,
		logger:  log,
		metrics: metrics,
		now:     time.Now,
	}
}

// KeyFailure reports one aggregate key that could not be written.
type KeyFailure struct {
	Aggregate string `json:"aggregate"`
	Key       string `json:"key"`
	Error     string `json:"error"`
}

// Summary reports one recompute run.
type Summary struct {
	Year               int          `json:"year"`
	Month              int          `json:"month"`
	ViolationRows      int          `json:"violation_rows"`
	CardSpendingRows   int          `json:"card_spending_rows"`
	VendorSpendingRows int          `json:"vendor_spending_rows"`
	CreditRows         int          `json:"credit_rows"`
	Failures           []KeyFailure `json:"failures,omitempty"`
}

// RecomputeMonth rebuilds every monthly rollup for the given calendar
// month from the ledger. It is a pure recomputation: prior rows for the
// month are dropped and rewritten, so repeated runs produce identical
// results. Per-key write failures are collected into the summary and do
// not abort sibling keys. The window is cut off at the start of the run
// so concurrent pipeline commits are never half-counted.
func (s *Service) RecomputeMonth(ctx context.Context, year, month int) (*Summary, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d", month)
	}

	started := s.now().UTC()
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	if to.After(started) {
		// Never read past the run's own start; an open month aggregates
		// only what has committed so far and stays re-runnable.
		to = started
	}

	s.logger.Info("Recomputing monthly aggregates", map[string]interface{}{
		"year":  year,
		"month": month,
		"from":  from,
		"to":    to,
	})

	summary := &Summary{Year: year, Month: month}

	if err := s.repo.DeleteMonth(ctx, year, month); err != nil {
		return nil, err
	}

	violations, err := s.repo.ViolationCounts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, row := range violations {
		row.Year, row.Month = year, month
		row.LastUpdated = started
		if err := s.repo.ReplaceViolation(ctx, row); err != nil {
			s.fail(summary, "monthly_violations", fmt.Sprintf("citizen=%s card=%s", row.CitizenID, row.CardID), err)
			continue
		}
		summary.ViolationRows++
	}

	cardSpending, err := s.repo.CardSpending(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, row := range cardSpending {
		row.Year, row.Month = year, month
		if err := s.repo.ReplaceCardSpending(ctx, row); err != nil {
			s.fail(summary, "monthly_card_spending", fmt.Sprintf("card=%s", row.CardID), err)
			continue
		}
		summary.CardSpendingRows++
	}

	vendorSpending, err := s.repo.VendorSpending(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, row := range vendorSpending {
		row.Year, row.Month = year, month
		if err := s.repo.ReplaceVendorSpending(ctx, row); err != nil {
			s.fail(summary, "monthly_vendor_spending", fmt.Sprintf("card=%s vendor=%s", row.CardID, row.VendorID), err)
			continue
		}
		summary.VendorSpendingRows++
	}

	credits, err := s.repo.CreditTotals(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, row := range credits {
		row.Year, row.Month = year, month
		row.CreatedAt = started
		if err := s.repo.ReplaceCredit(ctx, row); err != nil {
			s.fail(summary, "monthly_credits", fmt.Sprintf("card=%s", row.CardID), err)
			continue
		}
		summary.CreditRows++
	}

	if s.metrics != nil {
		s.metrics.RecordAggregation(s.now().UTC().Sub(started), len(summary.Failures))
	}

	s.logger.Info("Monthly aggregates recomputed", map[string]interface{}{
		"year":            year,
		"month":           month,
		"violations":      summary.ViolationRows,
		"card_spending":   summary.CardSpendingRows,
		"vendor_spending": summary.VendorSpendingRows,
		"credits":         summary.CreditRows,
		"failures":        len(summary.Failures),
	})

	return summary, nil
}

func (s *Service) fail(summary *Summary, aggregate, key string, err error) {
	s.logger.Error("Aggregate key failed", map[string]interface{}{
		"aggregate": aggregate,
		"key":       key,
		"error":     err.Error(),
	})
	summary.Failures = append(summary.Failures, KeyFailure{
		Aggregate: aggregate,
		Key:       key,
		Error:     err.Error(),
	})
}
