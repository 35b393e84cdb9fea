// Package robots gates every listing and article fetch behind the target
// site's robots.txt policy.
package robots

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const (
	robotsPath   = "/robots.txt"
	maxBodyBytes = 512 * 1024
)

// Gate caches parsed robots.txt policies per host for the process lifetime;
// a restart is the only refresh point. When robots.txt cannot be fetched or
// parsed the gate fails open: a transient network error must not silently
// disable a whole source.
type Gate struct {
	http      *http.Client
	userAgent string
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]*entry
}

type entry struct {
	data     *robotstxt.RobotsData
	allowAll bool
}

// NewGate wires an HTTP client used only for robots.txt retrieval.
func NewGate(httpClient *http.Client, userAgent string, logger *slog.Logger) *Gate {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Gate{
		http:      httpClient,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*entry),
	}
}

// Allowed reports whether the URL may be fetched under the gate's user
// agent. Unparsable URLs are refused; everything else degrades toward
// allowing the fetch.
func (g *Gate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}

	host := strings.ToLower(parsed.Host)
	e := g.lookup(host)
	if e == nil {
		e = g.fetchAndCache(ctx, host, parsed.Scheme)
	}

	if e.allowAll {
		return true
	}
	return e.data.TestAgent(parsed.Path, g.userAgent)
}

func (g *Gate) lookup(host string) *entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cache[host]
}

func (g *Gate) fetchAndCache(ctx context.Context, host, scheme string) *entry {
	if scheme == "" {
		scheme = "https"
	}

	e := g.fetch(ctx, scheme+"://"+host+robotsPath)

	g.mu.Lock()
	defer g.mu.Unlock()
	// Another goroutine may have raced the fetch; the first cached policy
	// wins so both callers see the same answer.
	if cached, ok := g.cache[host]; ok {
		return cached
	}
	g.cache[host] = e
	return e
}

func (g *Gate) fetch(ctx context.Context, robotsURL string) *entry {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return &entry{allowAll: true}
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.http.Do(req)
	if err != nil {
		g.warn("robots.txt fetch failed, failing open", "url", robotsURL, "error", err)
		return &entry{allowAll: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &entry{allowAll: true}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &entry{allowAll: true}
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		g.warn("robots.txt unparsable, failing open", "url", robotsURL, "error", err)
		return &entry{allowAll: true}
	}

	return &entry{data: data}
}

func (g *Gate) warn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
