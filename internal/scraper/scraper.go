// Package scraper implements the shared listing-to-store scrape procedure,
// parameterized per publisher by configuration and a link strategy.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sportfeeds/internal/config"
	"sportfeeds/internal/domain"
	"sportfeeds/internal/infrastructure/extract"
	"sportfeeds/internal/ports"
)

// ErrRobotsDenied marks a listing or article fetch refused by the robots
// gate; within a run it is permanent for that URL.
var ErrRobotsDenied = errors.New("robots policy denies fetch")

// Deps wires the collaborators of the scrape procedure.
type Deps struct {
	Config   config.Config
	Store    ports.ArticleStore
	Robots   ports.RobotsPolicy
	Fetchers map[string]ports.Fetcher // keyed by source key
	Registry *Registry
	Logger   *slog.Logger
}

// Scraper runs the configured scrape for any (source, section) feed.
type Scraper struct {
	cfg      config.Config
	store    ports.ArticleStore
	robots   ports.RobotsPolicy
	fetchers map[string]ports.Fetcher
	registry *Registry
	rules    map[string]SourceRules
	logger   *slog.Logger
}

var _ ports.SectionScraper = (*Scraper)(nil)

// New compiles per-source rules and returns a ready scraper. Pattern
// compilation errors surface here, before any run starts.
func New(deps Deps) (*Scraper, error) {
	rules := make(map[string]SourceRules, len(deps.Config.Sources))
	for _, src := range deps.Config.Sources {
		compiled := make([]*regexp.Regexp, 0, len(src.LinkPatterns))
		for _, pattern := range src.LinkPatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("source %s: compile link pattern %q: %w", src.Key, pattern, err)
			}
			compiled = append(compiled, re)
		}
		rules[src.Key] = SourceRules{
			Site:              src.Site,
			LinkSelectors:     src.LinkSelectors,
			LinkPatterns:      compiled,
			LinkExcludes:      src.LinkExcludes,
			NextPageSelectors: src.NextPageSelectors,
		}
	}

	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Scraper{
		cfg:      deps.Config,
		store:    deps.Store,
		robots:   deps.Robots,
		fetchers: deps.Fetchers,
		registry: registry,
		rules:    rules,
		logger:   deps.Logger,
	}, nil
}

// Scrape walks the feed's listing pages, extracts candidate article links,
// and upserts every new article that survives extraction and filtering.
// Single-article failures are counted and skipped; only a failure of the
// first listing page or a store error aborts the section.
func (s *Scraper) Scrape(ctx context.Context, feed ports.FeedKey, force bool) (domain.FeedStats, error) {
	stats := domain.FeedStats{Source: feed.Source, Section: feed.Section}

	src, ok := s.cfg.Source(feed.Source)
	if !ok {
		return stats, fmt.Errorf("unknown source %s", feed.Source)
	}
	sec, ok := src.Section(feed.Section)
	if !ok {
		return stats, fmt.Errorf("unknown section %s for source %s", feed.Section, feed.Source)
	}

	strategy, err := s.registry.Resolve(src.Strategy)
	if err != nil {
		return stats, fmt.Errorf("source %s: %w", src.Key, err)
	}

	fetcher, ok := s.fetchers[src.Key]
	if !ok {
		return stats, fmt.Errorf("no fetcher configured for source %s", src.Key)
	}

	candidates, err := s.collectLinks(ctx, strategy, fetcher, src, sec)
	if err != nil {
		return stats, err
	}
	stats.Found = len(candidates)
	s.info("listing walk done", "feed", feed.Source+"/"+feed.Section, "candidates", len(candidates))

	// The per-run cap truncates the candidate list itself, so repeated runs
	// against an unchanged listing converge: once the capped prefix is
	// stored, a rerun processes the same prefix and adds nothing.
	if len(candidates) > sec.MaxArticles {
		s.info("per-run article cap applied", "cap", sec.MaxArticles, "candidates", len(candidates))
		candidates = candidates[:sec.MaxArticles]
	}

	for i, articleURL := range candidates {
		known, err := s.store.Exists(ctx, articleURL)
		if err != nil {
			return stats, fmt.Errorf("store lookup %s: %w", articleURL, err)
		}
		if known && !force {
			stats.Skipped++
			continue
		}

		added, err := s.processArticle(ctx, fetcher, src, sec, feed, articleURL)
		switch {
		case err == nil && added:
			stats.Added++
		case err == nil:
			stats.Skipped++
		case isStoreError(err):
			return stats, err
		default:
			stats.Failed++
			s.warn("article skipped", "url", articleURL, "error", err)
		}

		if i < len(candidates)-1 {
			if err := sleep(ctx, sec.RequestDelay()); err != nil {
				return stats, err
			}
		}
	}

	return stats, nil
}

// collectLinks fetches the listing chain for every start URL up to the
// pagination depth and returns the deduplicated candidate article links.
func (s *Scraper) collectLinks(ctx context.Context, strategy LinkStrategy, fetcher ports.Fetcher, src config.SourceConfig, sec config.SectionConfig) ([]string, error) {
	rules := s.rules[src.Key]

	var all []string
	for _, startURL := range sec.StartURLs {
		links, err := s.listPages(ctx, strategy, fetcher, rules, sec, startURL)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", startURL, err)
		}
		all = append(all, links...)
	}

	seen := make(map[string]bool, len(all))
	deduped := all[:0]
	for _, link := range all {
		if seen[link] {
			continue
		}
		seen[link] = true
		deduped = append(deduped, link)
	}
	return deduped, nil
}

func (s *Scraper) listPages(ctx context.Context, strategy LinkStrategy, fetcher ports.Fetcher, rules SourceRules, sec config.SectionConfig, startURL string) ([]string, error) {
	var links []string
	current := startURL

	for page := 0; page < sec.MaxPages; page++ {
		if !s.robots.Allowed(ctx, current) {
			s.warn("listing fetch denied by robots policy", "url", current)
			if page == 0 {
				return nil, ErrRobotsDenied
			}
			break
		}

		body, err := fetcher.Fetch(ctx, current)
		if err != nil {
			// A broken first page kills the section for this run; a broken
			// deeper page just ends pagination early.
			if page == 0 {
				return nil, err
			}
			s.warn("pagination stopped on fetch error", "url", current, "error", err)
			break
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			if page == 0 {
				return nil, fmt.Errorf("parse listing: %w", err)
			}
			break
		}

		pageLinks := strategy.ArticleLinks(doc, current, rules)
		if len(pageLinks) == 0 {
			s.info("no article links on listing page", "url", current, "page", page+1)
			break
		}
		links = append(links, pageLinks...)

		if page == sec.MaxPages-1 {
			break
		}
		next := strategy.NextPage(doc, current, rules)
		if next == "" || next == current {
			break
		}
		current = next

		if err := sleep(ctx, sec.RequestDelay()); err != nil {
			return links, err
		}
	}

	return links, nil
}

// processArticle fetches, extracts, filters and upserts one article. The
// bool result reports whether a new row was created.
func (s *Scraper) processArticle(ctx context.Context, fetcher ports.Fetcher, src config.SourceConfig, sec config.SectionConfig, feed ports.FeedKey, articleURL string) (bool, error) {
	if !s.robots.Allowed(ctx, articleURL) {
		return false, ErrRobotsDenied
	}

	body, err := fetcher.Fetch(ctx, articleURL)
	if err != nil {
		return false, err
	}

	article := extract.Metadata(body, articleURL)
	if article.Title == "" {
		return false, fmt.Errorf("no usable title")
	}
	article.Source = feed.Source
	article.Section = feed.Section
	article.Site = src.Site
	article.FetchedAt = time.Now().UTC()

	if sec.Filters.Excludes(article) {
		s.info("article filtered out", "url", articleURL)
		return false, nil
	}

	created, err := s.store.Upsert(ctx, article)
	if err != nil {
		return false, &storeError{err: err}
	}
	return created, nil
}

// storeError marks persistence failures so the run treats them as fatal
// instead of skip-and-continue.
type storeError struct{ err error }

func (e *storeError) Error() string { return fmt.Sprintf("store: %v", e.err) }
func (e *storeError) Unwrap() error { return e.err }

func isStoreError(err error) bool {
	var se *storeError
	return errors.As(err, &se)
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

func (s *Scraper) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Scraper) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
