// Package scheduler periodically re-runs the monthly aggregation so the
// rollup tables track the ledger without manual intervention.
package scheduler

import (
	"context"
	"sync"
	"time"

	"cardguard/internal/aggregate"
	"cardguard/pkg/logger"
)

type Scheduler struct {
	aggregates *aggregate.Service
	interval   time.Duration
	logger     logger.Logger
	stop       chan struct{}
	wg         sync.WaitGroup
	// now is swappable for tests.
	now func() time.Time
}

func NewScheduler(aggregates *aggregate.Service, interval time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{
		aggregates: aggregates,
		interval:   interval,
		logger:     log,
		stop:       make(chan struct{}),
		now:        time.Now,
	}
}

// Start launches the ticker loop. Each tick recomputes the previous
// calendar month and, for freshness, the current one. Recompute is
// idempotent so overlapping months across ticks are harmless.
func (s *Scheduler) Start() {
	ticker := time.NewTicker(s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runOnce()
			case <-s.stop:
				return
			}
		}
	}()
	s.logger.Info("Aggregation scheduler started", map[string]interface{}{
		"interval": s.interval.String(),
	})
}

// Stop halts the ticker loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) runOnce() {
	now := s.now().UTC()
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	for _, at := range []time.Time{prev, now} {
		year, month := at.Year(), int(at.Month())
		if _, err := s.aggregates.RecomputeMonth(context.Background(), year, month); err != nil {
			s.logger.Error("Scheduled aggregation failed", map[string]interface{}{
				"year":  year,
				"month": month,
				"error": err.Error(),
			})
		}
	}
}
