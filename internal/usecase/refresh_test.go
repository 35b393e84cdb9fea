package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sportfeeds/internal/config"
	"sportfeeds/internal/domain"
	"sportfeeds/internal/ports"
)

type fakeSectionScraper struct {
	mu      sync.Mutex
	calls   []ports.FeedKey
	errOn   map[ports.FeedKey]error
	release chan struct{}
}

func (f *fakeSectionScraper) Scrape(_ context.Context, feed ports.FeedKey, _ bool) (domain.FeedStats, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.calls = append(f.calls, feed)
	f.mu.Unlock()

	if err := f.errOn[feed]; err != nil {
		return domain.FeedStats{Source: feed.Source, Section: feed.Section, Failed: 1}, err
	}
	return domain.FeedStats{Source: feed.Source, Section: feed.Section, Found: 3, Added: 2, Skipped: 1}, nil
}

func (f *fakeSectionScraper) scraped() []ports.FeedKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.FeedKey(nil), f.calls...)
}

type cleanupStore struct {
	ports.ArticleStore
	mu       sync.Mutex
	cleanups int
}

func (s *cleanupStore) CleanupOlderThan(context.Context, time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups++
	return 0, nil
}

func twoFeedConfig() config.Config {
	return config.Config{
		Refresh: config.RefreshConfig{IntervalMinutes: 10, RetentionDays: 30},
		Sources: []config.SourceConfig{
			{
				Key:  "alpha",
				Site: "alpha.example.com",
				Sections: []config.SectionConfig{
					{Key: "news", StartURLs: []string{"https://alpha.example.com/news"}},
					{Key: "live", StartURLs: []string{"https://alpha.example.com/live"}},
				},
			},
			{
				Key:  "beta",
				Site: "beta.example.com",
				Sections: []config.SectionConfig{
					{Key: "news", StartURLs: []string{"https://beta.example.com/news"}},
				},
			},
		},
	}
}

func TestRunWalksEveryFeedInOrder(t *testing.T) {
	t.Parallel()

	scraper := &fakeSectionScraper{}
	store := &cleanupStore{}
	r := NewRefresher(RefresherDeps{Config: twoFeedConfig(), Scraper: scraper, Store: store})

	ok := r.Run(context.Background())
	require.True(t, ok)

	assert.Equal(t, []ports.FeedKey{
		{Source: "alpha", Section: "news"},
		{Source: "alpha", Section: "live"},
		{Source: "beta", Section: "news"},
	}, scraper.scraped())

	status := r.Status()
	assert.False(t, status.Running)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, 6, status.LastRun.TotalAdded)
	assert.Len(t, status.LastRun.Feeds, 3)
	assert.Equal(t, 1, store.cleanups)
}

func TestRunSkipsWhenAlreadyRunning(t *testing.T) {
	t.Parallel()

	scraper := &fakeSectionScraper{release: make(chan struct{})}
	r := NewRefresher(RefresherDeps{Config: twoFeedConfig(), Scraper: scraper, Store: &cleanupStore{}})

	started := make(chan bool)
	go func() {
		started <- true
		r.Run(context.Background())
		started <- true
	}()
	<-started

	// Wait until the first run holds the guard.
	require.Eventually(t, func() bool { return r.Status().Running }, time.Second, time.Millisecond)

	assert.False(t, r.Run(context.Background()))
	assert.False(t, r.TriggerNow())

	close(scraper.release)
	<-started
	assert.False(t, r.Status().Running)
}

func TestRunContainsSectionFailures(t *testing.T) {
	t.Parallel()

	scraper := &fakeSectionScraper{errOn: map[ports.FeedKey]error{
		{Source: "alpha", Section: "news"}: errors.New("listing fetch failed"),
	}}
	r := NewRefresher(RefresherDeps{Config: twoFeedConfig(), Scraper: scraper, Store: &cleanupStore{}})

	require.True(t, r.Run(context.Background()))

	// The failed first section never stops the remaining two.
	assert.Len(t, scraper.scraped(), 3)

	report := r.Status().LastRun
	require.NotNil(t, report)
	require.Len(t, report.Feeds, 3)
	assert.Equal(t, 1, report.Feeds[0].Failed)
	assert.Equal(t, 4, report.TotalAdded)
}

func TestTriggerNowRunsAsynchronously(t *testing.T) {
	t.Parallel()

	scraper := &fakeSectionScraper{}
	r := NewRefresher(RefresherDeps{Config: twoFeedConfig(), Scraper: scraper, Store: &cleanupStore{}})

	require.True(t, r.TriggerNow())

	require.Eventually(t, func() bool {
		return !r.Status().Running && r.Status().LastRun != nil
	}, time.Second, time.Millisecond)
	assert.Len(t, scraper.scraped(), 3)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	scraper := &fakeSectionScraper{}
	r := NewRefresher(RefresherDeps{Config: twoFeedConfig(), Scraper: scraper, Store: &cleanupStore{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.True(t, r.Run(ctx))
	// The first section still runs; the cancellation check stops the walk.
	assert.Len(t, scraper.scraped(), 1)
}
