// Package storage persists articles in SQLite. Upserts are atomic per URL
// so feed readers never observe partial rows, and partial run progress
// stays durable if the process dies mid-refresh.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"sportfeeds/internal/config"
	"sportfeeds/internal/domain"
	"sportfeeds/internal/ports"
)

const topAuthorLimit = 5

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    url            TEXT PRIMARY KEY,
    source         TEXT NOT NULL,
    section        TEXT NOT NULL,
    site           TEXT NOT NULL,
    title          TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    image          TEXT NOT NULL DEFAULT '',
    author         TEXT NOT NULL DEFAULT '',
    date_published TIMESTAMP,
    date_modified  TIMESTAMP,
    fetched_at     TIMESTAMP NOT NULL,
    created_at     TIMESTAMP NOT NULL,
    updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_feed_date
    ON articles (source, section, date_published);
`

// SQLiteStore implements ports.ArticleStore on a single database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.ArticleStore = (*SQLiteStore)(nil)

// Open creates (if needed) and prepares the database at path. WAL keeps
// feed reads from blocking behind an in-progress refresh run.
func Open(path string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts the article or updates its mutable fields, keyed by URL.
// created_at is set once on first insert and never touched again;
// fetched_at and updated_at advance on every upsert. Returns whether a new
// row was created.
func (s *SQLiteStore) Upsert(ctx context.Context, article domain.Article) (bool, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM articles WHERE url = ?", article.URL).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		query, args, buildErr := sq.Insert("articles").
			Columns("url", "source", "section", "site", "title", "description", "image", "author",
				"date_published", "date_modified", "fetched_at", "created_at", "updated_at").
			Values(article.URL, article.Source, article.Section, article.Site, article.Title,
				article.Description, article.Image, article.Author,
				nullable(article.DatePublished), nullable(article.DateModified),
				article.FetchedAt, now, now).
			ToSql()
		if buildErr != nil {
			return false, fmt.Errorf("build insert: %w", buildErr)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return false, fmt.Errorf("insert article: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit insert: %w", err)
		}
		return true, nil

	case err != nil:
		return false, fmt.Errorf("probe article: %w", err)
	}

	query, args, buildErr := sq.Update("articles").
		Set("source", article.Source).
		Set("section", article.Section).
		Set("site", article.Site).
		Set("title", article.Title).
		Set("description", article.Description).
		Set("image", article.Image).
		Set("author", article.Author).
		Set("date_published", nullable(article.DatePublished)).
		Set("date_modified", nullable(article.DateModified)).
		Set("fetched_at", article.FetchedAt).
		Set("updated_at", now).
		Where(sq.Eq{"url": article.URL}).
		ToSql()
	if buildErr != nil {
		return false, fmt.Errorf("build update: %w", buildErr)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("update article: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update: %w", err)
	}
	return false, nil
}

// Exists reports whether an article with the URL is stored.
func (s *SQLiteStore) Exists(ctx context.Context, url string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM articles WHERE url = ?", url).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", url, err)
	}
	return true, nil
}

// Recent returns the feed's articles newest-first by publication date, with
// undated rows after all dated ones (fetch time breaks ties). The limit is
// clamped to [1, MaxFeedLimit]; zero or negative means the default.
func (s *SQLiteStore) Recent(ctx context.Context, q ports.ArticleQuery) ([]domain.Article, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = config.DefaultFeedLimit
	}
	if limit > config.MaxFeedLimit {
		limit = config.MaxFeedLimit
	}

	builder := sq.Select("url", "source", "section", "site", "title", "description", "image", "author",
		"date_published", "date_modified", "fetched_at", "created_at", "updated_at").
		From("articles").
		OrderBy("date_published IS NULL", "date_published DESC", "fetched_at DESC").
		Limit(uint64(limit))

	if q.Source != "" {
		builder = builder.Where(sq.Eq{"source": q.Source})
	}
	if q.Section != "" {
		builder = builder.Where(sq.Eq{"section": q.Section})
	}
	if term := strings.TrimSpace(q.Term); term != "" {
		builder = builder.Where("LOWER(title || ' ' || description) LIKE ?", "%"+strings.ToLower(term)+"%")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		var a domain.Article
		var published, modified sql.NullTime
		if err := rows.Scan(&a.URL, &a.Source, &a.Section, &a.Site, &a.Title, &a.Description,
			&a.Image, &a.Author, &published, &modified, &a.FetchedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.DatePublished = timePtr(published)
		a.DateModified = timePtr(modified)
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent: %w", err)
	}

	return articles, nil
}

// LastSectionUpdate returns the newest updated_at for the feed, or nil when
// it has no rows yet.
func (s *SQLiteStore) LastSectionUpdate(ctx context.Context, feed ports.FeedKey) (*time.Time, error) {
	query, args, err := sq.Select("updated_at").From("articles").
		Where(sq.Eq{"source": feed.Source, "section": feed.Section}).
		OrderBy("updated_at DESC").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build last-update query: %w", err)
	}

	var updated time.Time
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last update: %w", err)
	}
	return &updated, nil
}

// Stats aggregates corpus-wide counters for the health and admin surfaces.
func (s *SQLiteStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	var stats domain.StoreStats
	now := s.now()

	counts := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&stats.TotalArticles, "SELECT COUNT(*) FROM articles", nil},
		{&stats.AddedLast24h, "SELECT COUNT(*) FROM articles WHERE created_at >= ?", []any{now.Add(-24 * time.Hour)}},
		{&stats.AddedLast7d, "SELECT COUNT(*) FROM articles WHERE created_at >= ?", []any{now.Add(-7 * 24 * time.Hour)}},
		{&stats.WithImage, "SELECT COUNT(*) FROM articles WHERE image != ''", nil},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return stats, fmt.Errorf("stats count: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT author, COUNT(*) AS n FROM articles WHERE author != '' GROUP BY author ORDER BY n DESC, author ASC LIMIT ?",
		topAuthorLimit)
	if err != nil {
		return stats, fmt.Errorf("stats authors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ac domain.AuthorCount
		if err := rows.Scan(&ac.Author, &ac.Count); err != nil {
			return stats, fmt.Errorf("scan author count: %w", err)
		}
		stats.TopAuthors = append(stats.TopAuthors, ac)
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate authors: %w", err)
	}

	var last time.Time
	err = s.db.QueryRowContext(ctx, "SELECT updated_at FROM articles ORDER BY updated_at DESC LIMIT 1").Scan(&last)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return stats, fmt.Errorf("stats last update: %w", err)
	default:
		stats.LastUpdate = &last
	}

	return stats, nil
}

// CleanupOlderThan deletes articles whose last fetch is older than the
// retention window and returns how many rows went away.
func (s *SQLiteStore) CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	query, args, err := sq.Delete("articles").
		Where(sq.Lt{"fetched_at": s.now().Add(-retention)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 && s.logger != nil {
		s.logger.Info("cleaned up old articles", "deleted", n)
	}
	return n, nil
}

func nullable(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
