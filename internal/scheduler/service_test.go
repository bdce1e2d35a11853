package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cardguard/internal/aggregate"
	"cardguard/internal/domain"
	"cardguard/pkg/logger"
)

type recordingRepo struct {
	mu     sync.Mutex
	months [][2]int
}

func (r *recordingRepo) DeleteMonth(_ context.Context, year, month int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.months = append(r.months, [2]int{year, month})
	return nil
}

func (r *recordingRepo) ViolationCounts(context.Context, time.Time, time.Time) ([]*domain.MonthlyViolation, error) {
	return nil, nil
}

func (r *recordingRepo) CardSpending(context.Context, time.Time, time.Time) ([]*domain.MonthlyCardSpending, error) {
	return nil, nil
}

func (r *recordingRepo) VendorSpending(context.Context, time.Time, time.Time) ([]*domain.MonthlyVendorSpending, error) {
	return nil, nil
}

func (r *recordingRepo) CreditTotals(context.Context, time.Time, time.Time) ([]*domain.MonthlyCredit, error) {
	return nil, nil
}

func (r *recordingRepo) ReplaceViolation(context.Context, *domain.MonthlyViolation) error { return nil }
func (r *recordingRepo) ReplaceCardSpending(context.Context, *domain.MonthlyCardSpending) error {
	return nil
}
func (r *recordingRepo) ReplaceVendorSpending(context.Context, *domain.MonthlyVendorSpending) error {
	return nil
}
func (r *recordingRepo) ReplaceCredit(context.Context, *domain.MonthlyCredit) error { return nil }

func TestRunOnceCoversPreviousAndCurrentMonth(t *testing.T) {
	repo := &recordingRepo{}
	svc := aggregate.NewService(repo, logger.NewNop(), nil)
	sched := NewScheduler(svc, time.Hour, logger.NewNop())
	sched.now = func() time.Time {
		return time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)
	}

	sched.runOnce()

	assert.Equal(t, [][2]int{{2025, 12}, {2026, 1}}, repo.months)
}

func TestStartStop(t *testing.T) {
	repo := &recordingRepo{}
	svc := aggregate.NewService(repo, logger.NewNop(), nil)
	sched := NewScheduler(svc, time.Hour, logger.NewNop())

	sched.Start()
	sched.Stop()
}
