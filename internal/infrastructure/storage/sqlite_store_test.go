package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sportfeeds/internal/config"
	"sportfeeds/internal/domain"
	"sportfeeds/internal/ports"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testArticle(url string) domain.Article {
	published := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	return domain.Article{
		URL:           url,
		Title:         "Title for " + url,
		Description:   "Description",
		Author:        "Ana Costa",
		Image:         "https://cdn.example.com/pic.jpg",
		DatePublished: &published,
		FetchedAt:     time.Date(2025, 5, 1, 13, 0, 0, 0, time.UTC),
		Source:        "lance",
		Section:       "futebol",
		Site:          "lance.com.br",
	}
}

func TestUpsertCreateThenUpdate(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	t0 := time.Date(2025, 5, 1, 14, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return t0 }

	a := testArticle("https://lance.com.br/noticia-1.html")
	created, err := store.Upsert(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)

	// Second upsert of the same URL updates in place.
	store.now = func() time.Time { return t0.Add(time.Hour) }
	a.Title = "Updated title"
	a.FetchedAt = a.FetchedAt.Add(time.Hour)
	created, err = store.Upsert(ctx, a)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := store.Recent(ctx, ports.ArticleQuery{Source: "lance", Section: "futebol"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "Updated title", got[0].Title)
	assert.Equal(t, t0, got[0].CreatedAt.UTC())
	assert.Equal(t, t0.Add(time.Hour), got[0].UpdatedAt.UTC())
	assert.Equal(t, a.FetchedAt, got[0].FetchedAt.UTC())
}

func TestExists(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, testArticle("https://lance.com.br/a.html"))
	require.NoError(t, err)

	known, err := store.Exists(ctx, "https://lance.com.br/a.html")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = store.Exists(ctx, "https://lance.com.br/b.html")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestRecentOrderingUndatedLast(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	older := testArticle("https://lance.com.br/old.html")
	d1 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	older.DatePublished = &d1

	newer := testArticle("https://lance.com.br/new.html")
	d2 := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)
	newer.DatePublished = &d2

	undated := testArticle("https://lance.com.br/undated.html")
	undated.DatePublished = nil

	for _, a := range []domain.Article{older, undated, newer} {
		_, err := store.Upsert(ctx, a)
		require.NoError(t, err)
	}

	got, err := store.Recent(ctx, ports.ArticleQuery{Source: "lance", Section: "futebol"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, newer.URL, got[0].URL)
	assert.Equal(t, older.URL, got[1].URL)
	assert.Equal(t, undated.URL, got[2].URL)
	assert.Nil(t, got[2].DatePublished)
}

func TestRecentLimitClamping(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < config.MaxFeedLimit+10; i++ {
		a := testArticle(fmt.Sprintf("https://lance.com.br/n-%03d.html", i))
		d := base.Add(time.Duration(i) * time.Minute)
		a.DatePublished = &d
		_, err := store.Upsert(ctx, a)
		require.NoError(t, err)
	}

	got, err := store.Recent(ctx, ports.ArticleQuery{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = store.Recent(ctx, ports.ArticleQuery{Limit: 0})
	require.NoError(t, err)
	assert.Len(t, got, config.DefaultFeedLimit)

	got, err = store.Recent(ctx, ports.ArticleQuery{Limit: 100000})
	require.NoError(t, err)
	assert.Len(t, got, config.MaxFeedLimit)
}

func TestRecentTermFilter(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	match := testArticle("https://lance.com.br/derbi.html")
	match.Title = "Clássico: Flamengo vence o Derbi"
	other := testArticle("https://lance.com.br/tenis.html")
	other.Title = "Final de tênis"
	other.Description = "Sem relação"

	for _, a := range []domain.Article{match, other} {
		_, err := store.Upsert(ctx, a)
		require.NoError(t, err)
	}

	got, err := store.Recent(ctx, ports.ArticleQuery{Term: "FLAMENGO"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, match.URL, got[0].URL)
}

func TestLastSectionUpdate(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	got, err := store.LastSectionUpdate(ctx, ports.FeedKey{Source: "lance", Section: "futebol"})
	require.NoError(t, err)
	assert.Nil(t, got)

	t0 := time.Date(2025, 5, 3, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return t0 }
	_, err = store.Upsert(ctx, testArticle("https://lance.com.br/x.html"))
	require.NoError(t, err)

	got, err = store.LastSectionUpdate(ctx, ports.FeedKey{Source: "lance", Section: "futebol"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, t0, got.UTC())
}

func TestStats(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	// Rows with created_at spread across the counting windows.
	rows := []struct {
		url     string
		created time.Time
		author  string
		image   string
	}{
		{"https://lance.com.br/1.html", now.Add(-time.Hour), "Ana Costa", "https://cdn.example.com/a.jpg"},
		{"https://lance.com.br/2.html", now.Add(-48 * time.Hour), "Ana Costa", ""},
		{"https://lance.com.br/3.html", now.Add(-10 * 24 * time.Hour), "Pedro Lima", ""},
	}
	for _, r := range rows {
		store.now = func() time.Time { return r.created }
		a := testArticle(r.url)
		a.Author = r.author
		a.Image = r.image
		_, err := store.Upsert(ctx, a)
		require.NoError(t, err)
	}

	store.now = func() time.Time { return now }
	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalArticles)
	assert.Equal(t, 1, stats.AddedLast24h)
	assert.Equal(t, 2, stats.AddedLast7d)
	assert.Equal(t, 1, stats.WithImage)
	require.NotEmpty(t, stats.TopAuthors)
	assert.Equal(t, domain.AuthorCount{Author: "Ana Costa", Count: 2}, stats.TopAuthors[0])
	require.NotNil(t, stats.LastUpdate)
}

func TestCleanupOlderThan(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	fresh := testArticle("https://lance.com.br/fresh.html")
	fresh.FetchedAt = now.Add(-time.Hour)
	stale := testArticle("https://lance.com.br/stale.html")
	stale.FetchedAt = now.Add(-40 * 24 * time.Hour)

	for _, a := range []domain.Article{fresh, stale} {
		_, err := store.Upsert(ctx, a)
		require.NoError(t, err)
	}

	deleted, err := store.CleanupOlderThan(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	known, err := store.Exists(ctx, fresh.URL)
	require.NoError(t, err)
	assert.True(t, known)
	known, err = store.Exists(ctx, stale.URL)
	require.NoError(t, err)
	assert.False(t, known)
}
