package ports

import (
	"context"
	"time"

	"sportfeeds/internal/domain"
)

// FeedKey identifies one configured (source, section) pair.
type FeedKey struct {
	Source  string
	Section string
}

// ArticleQuery selects recent articles for one feed. Limit is clamped by the
// store; Term is an optional case-insensitive substring filter over
// title+description.
type ArticleQuery struct {
	Source  string
	Section string
	Limit   int
	Term    string
}

// ArticleStore persists normalized articles keyed by URL.
type ArticleStore interface {
	// Upsert inserts or updates the article atomically by URL and reports
	// whether a new row was created.
	Upsert(ctx context.Context, article domain.Article) (bool, error)
	Exists(ctx context.Context, url string) (bool, error)
	// Recent returns articles ordered by date_published descending with
	// undated articles after all dated ones.
	Recent(ctx context.Context, q ArticleQuery) ([]domain.Article, error)
	Stats(ctx context.Context) (domain.StoreStats, error)
	// LastSectionUpdate returns the newest updated_at for a feed, or nil if
	// the feed has no rows yet.
	LastSectionUpdate(ctx context.Context, feed FeedKey) (*time.Time, error)
	// CleanupOlderThan drops articles not seen within the retention window.
	CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error)
	Close() error
}

// Fetcher performs rate-limited, retried GET requests.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RobotsPolicy answers whether a URL may be fetched under the configured
// user agent.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// SectionScraper executes the scrape of one configured feed against the
// store and returns the per-run counters. force re-fetches articles the
// store already knows about.
type SectionScraper interface {
	Scrape(ctx context.Context, feed FeedKey, force bool) (domain.FeedStats, error)
}

// RefreshTrigger starts a refresh run unless one is already in flight.
type RefreshTrigger interface {
	TriggerNow() bool
}

// Scheduler drives recurring refresh runs.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
