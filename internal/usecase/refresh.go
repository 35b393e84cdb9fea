// Package usecase orchestrates refresh runs over the configured feeds.
package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sportfeeds/internal/config"
	"sportfeeds/internal/domain"
	"sportfeeds/internal/logging"
	"sportfeeds/internal/ports"
)

// RefresherDeps wires the orchestrator's collaborators.
type RefresherDeps struct {
	Config  config.Config
	Scraper ports.SectionScraper
	Store   ports.ArticleStore
	Logger  *slog.Logger
}

// Refresher walks every configured (source, section) pair sequentially and
// guarantees at most one run in flight, whatever mix of timer ticks and
// on-demand triggers fires it.
type Refresher struct {
	cfg     config.Config
	scraper ports.SectionScraper
	store   ports.ArticleStore
	logger  *slog.Logger
	feeds   []ports.FeedKey

	mu      sync.Mutex
	running bool
	last    *domain.RunReport
}

var _ ports.RefreshTrigger = (*Refresher)(nil)

// NewRefresher snapshots the ordered feed list from config; the list never
// changes after startup.
func NewRefresher(deps RefresherDeps) *Refresher {
	var feeds []ports.FeedKey
	for _, src := range deps.Config.Sources {
		for _, sec := range src.Sections {
			feeds = append(feeds, ports.FeedKey{Source: src.Key, Section: sec.Key})
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Component(nil, "refresher")
	}

	return &Refresher{
		cfg:     deps.Config,
		scraper: deps.Scraper,
		store:   deps.Store,
		logger:  logger,
		feeds:   feeds,
	}
}

// RunStatus is the monitoring view of the orchestrator.
type RunStatus struct {
	Running         bool
	IntervalMinutes int
	LastRun         *domain.RunReport
}

// Status returns a snapshot for the health surface.
func (r *Refresher) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RunStatus{
		Running:         r.running,
		IntervalMinutes: r.cfg.Refresh.IntervalMinutes,
		LastRun:         r.last,
	}
}

// Run executes one refresh synchronously. It returns false without doing
// anything when another run is already in flight.
func (r *Refresher) Run(ctx context.Context) bool {
	if !r.begin() {
		r.logger.Warn("refresh already running, skipping trigger")
		return false
	}
	defer r.end()
	r.execute(ctx)
	return true
}

// TriggerNow starts an asynchronous refresh for the admin surface; the
// boolean reports accepted versus skipped-already-running.
func (r *Refresher) TriggerNow() bool {
	if !r.begin() {
		r.logger.Warn("manual refresh rejected, run in flight")
		return false
	}
	go func() {
		defer r.end()
		r.execute(context.Background())
	}()
	return true
}

func (r *Refresher) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Refresher) end() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// execute iterates the feed snapshot in order. A failing section is
// recorded with whatever counters it accumulated and never aborts the
// remaining sections.
func (r *Refresher) execute(ctx context.Context) {
	report := domain.RunReport{StartedAt: time.Now().UTC()}
	r.logger.Info("refresh run started", "feeds", len(r.feeds))

	for i, feed := range r.feeds {
		stats, err := r.scraper.Scrape(ctx, feed, false)
		if err != nil {
			r.logger.Error("section refresh failed",
				"source", feed.Source, "section", feed.Section, "error", err)
		}
		report.Feeds = append(report.Feeds, stats)
		report.TotalAdded += stats.Added

		if ctx.Err() != nil {
			r.logger.Warn("refresh run cancelled", "error", ctx.Err())
			break
		}
		if i < len(r.feeds)-1 {
			if err := sleep(ctx, r.cfg.Refresh.SectionDelay()); err != nil {
				break
			}
		}
	}

	if retention := r.cfg.Refresh.Retention(); retention > 0 {
		if _, err := r.store.CleanupOlderThan(ctx, retention); err != nil {
			r.logger.Warn("article cleanup failed", "error", err)
		}
	}

	report.FinishedAt = time.Now().UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	r.logger.Info("refresh run finished",
		"duration", report.Duration.Round(time.Millisecond), "added", report.TotalAdded)

	r.mu.Lock()
	r.last = &report
	r.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
