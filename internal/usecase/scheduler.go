package usecase

import (
	"context"
	"time"

	"sportfeeds/internal/ports"
)

// Scheduler wires the interval driver to the refresher. Overlap protection
// lives entirely in the refresher's own run guard.
type Scheduler struct {
	driver    ports.Scheduler
	refresher *Refresher
}

// NewScheduler returns a helper to start/stop recurring refreshes.
func NewScheduler(driver ports.Scheduler, refresher *Refresher) *Scheduler {
	return &Scheduler{driver: driver, refresher: refresher}
}

// Start registers the refresh job with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.refresher == nil {
		return nil
	}

	job := func(time.Time) {
		s.refresher.Run(ctx)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
