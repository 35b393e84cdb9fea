// Package app assembles the application from configuration and runs it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sportfeeds/internal/config"
	"sportfeeds/internal/infrastructure/fetch"
	"sportfeeds/internal/infrastructure/robots"
	"sportfeeds/internal/infrastructure/scheduler"
	"sportfeeds/internal/infrastructure/storage"
	"sportfeeds/internal/logging"
	"sportfeeds/internal/ports"
	"sportfeeds/internal/scraper"
	"sportfeeds/internal/server"
	"sportfeeds/internal/usecase"
)

// Application owns the wired components and their lifecycle.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.SQLiteStore
	scheduler *usecase.Scheduler
	server    *server.Server
}

// New validates the configuration and wires every component. Nothing is
// started yet; Run does that.
func New(cfg config.Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Database.Path, logging.Component(logger, "storage"))
	if err != nil {
		return nil, fmt.Errorf("open article store: %w", err)
	}

	gate := robots.NewGate(nil, cfg.UserAgent, logging.Component(logger, "robots"))

	// One client per source keeps rate limiting scoped to a publisher.
	fetchLogger := logging.Component(logger, "fetch")
	fetchers := make(map[string]ports.Fetcher, len(cfg.Sources))
	for _, src := range cfg.Sources {
		fetchers[src.Key] = fetch.NewClient(nil, cfg.UserAgent, minRequestDelay(src), fetchLogger)
	}

	scr, err := scraper.New(scraper.Deps{
		Config:   cfg,
		Store:    store,
		Robots:   gate,
		Fetchers: fetchers,
		Registry: scraper.NewRegistry(),
		Logger:   logging.Component(logger, "scraper"),
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	refresher := usecase.NewRefresher(usecase.RefresherDeps{
		Config:  cfg,
		Scraper: scr,
		Store:   store,
		Logger:  logging.Component(logger, "refresher"),
	})

	driver := scheduler.New(cfg.Refresh.Interval(), logging.Component(logger, "scheduler"))

	srv := server.New(server.Deps{
		Config:    cfg,
		Store:     store,
		Refresher: refresher,
		Logger:    logging.Component(logger, "server"),
	})

	return &Application{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		scheduler: usecase.NewScheduler(driver, refresher),
		server:    srv,
	}, nil
}

// Run starts the scheduler and serves HTTP until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		if err := a.scheduler.Stop(context.Background()); err != nil {
			a.logger.Warn("scheduler stop failed", "error", err)
		}
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", "error", err)
		}
	}()

	return a.server.Run(ctx)
}

// minRequestDelay picks the tightest section delay of a source so the shared
// limiter never throttles below what any section expects.
func minRequestDelay(src config.SourceConfig) time.Duration {
	var lowest time.Duration
	for _, sec := range src.Sections {
		d := sec.RequestDelay()
		if d <= 0 {
			continue
		}
		if lowest == 0 || d < lowest {
			lowest = d
		}
	}
	return lowest
}
