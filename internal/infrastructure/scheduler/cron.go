// Package scheduler fires the refresh job on a fixed wall-clock interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"sportfeeds/internal/ports"
)

// IntervalScheduler drives the job with a single cron entry, so the timer
// itself can never fire two logically concurrent triggers. Teardown is the
// owner's responsibility: the caller that invoked Start calls Stop once the
// run context ends.
type IntervalScheduler struct {
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// New builds a scheduler with a minutes-granularity interval.
func New(interval time.Duration, logger *slog.Logger) *IntervalScheduler {
	return &IntervalScheduler{interval: interval, logger: logger}
}

// Start arms the interval timer and fires the job once immediately so a
// fresh process does not serve an empty corpus until the first tick.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() { job(time.Now()) }); err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}

	c.Start()
	s.cron = c
	if s.logger != nil {
		s.logger.Info("scheduler armed", "interval", s.interval)
	}

	go job(time.Now())
	return nil
}

// Stop halts the timer and waits for a running cron callback to return.
// Safe to call concurrently and repeatedly; only the first call tears the
// timer down.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
