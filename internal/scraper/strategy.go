package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SourceRules is the per-publisher parameterization of link extraction:
// compiled from config once at startup.
type SourceRules struct {
	Site              string
	LinkSelectors     []string
	LinkPatterns      []*regexp.Regexp
	LinkExcludes      []string
	NextPageSelectors []string
}

// LinkStrategy isolates how one publisher family exposes article links on a
// listing page. The scraping procedure itself is shared; only sources whose
// markup defeats selector/pattern rules need a bespoke implementation.
type LinkStrategy interface {
	Name() string
	ArticleLinks(doc *goquery.Document, baseURL string, rules SourceRules) []string
	NextPage(doc *goquery.Document, currentURL string, rules SourceRules) string
}

// Registry maps strategy names to implementations.
type Registry struct {
	strategies map[string]LinkStrategy
}

// NewRegistry builds a registry pre-populated with the CSS default.
func NewRegistry() *Registry {
	r := &Registry{strategies: map[string]LinkStrategy{}}
	r.Register(CSSStrategy{})
	return r
}

// Register adds or replaces a strategy implementation.
func (r *Registry) Register(s LinkStrategy) {
	r.strategies[s.Name()] = s
}

// Resolve returns a strategy by name; the empty name means the CSS default.
func (r *Registry) Resolve(name string) (LinkStrategy, error) {
	if name == "" {
		name = "css"
	}
	if s, ok := r.strategies[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("link strategy %s is not registered", name)
}

// defaultLinkSelectors are tried when a source configures none.
var defaultLinkSelectors = []string{"article a", "h2 a", "h3 a"}

// defaultNextPageSelectors cover the pagination markup seen across the
// tracked publishers.
var defaultNextPageSelectors = []string{
	`a[rel="next"]`,
	"a.next",
	"a.pagination-next",
	`a[aria-label*="next"]`,
	`a[aria-label*="Next"]`,
	`a[aria-label*="próxima"]`,
	`a[aria-label*="Próxima"]`,
}

// CSSStrategy is the selector/pattern-driven default covering every
// publisher whose listings are plain server-rendered HTML.
type CSSStrategy struct{}

// Name identifies the strategy inside the registry.
func (CSSStrategy) Name() string { return "css" }

// ArticleLinks collects candidate hrefs matching the source's selectors,
// resolves them against the listing URL and keeps only links that look like
// articles for that publisher. Order of first appearance is preserved.
func (CSSStrategy) ArticleLinks(doc *goquery.Document, baseURL string, rules SourceRules) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	selectors := rules.LinkSelectors
	if len(selectors) == 0 {
		selectors = defaultLinkSelectors
	}

	var links []string
	seen := map[string]bool{}
	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, ok := sel.Attr("href")
			if !ok || href == "" {
				return
			}

			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				return
			}
			full := base.ResolveReference(ref)
			full.Fragment = ""

			candidate := full.String()
			if !acceptLink(full, candidate, rules) || seen[candidate] {
				return
			}
			seen[candidate] = true
			links = append(links, candidate)
		})
	}

	return links
}

// NextPage returns the absolute URL of the next listing page, or empty when
// pagination ends (or points back at the current page).
func (CSSStrategy) NextPage(doc *goquery.Document, currentURL string, rules SourceRules) string {
	base, err := url.Parse(currentURL)
	if err != nil {
		return ""
	}

	selectors := rules.NextPageSelectors
	if len(selectors) == 0 {
		selectors = defaultNextPageSelectors
	}

	for _, selector := range selectors {
		href, ok := doc.Find(selector).First().Attr("href")
		if !ok || href == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		next := base.ResolveReference(ref).String()
		if next != currentURL {
			return next
		}
	}

	return ""
}

func acceptLink(u *url.URL, candidate string, rules SourceRules) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if rules.Site != "" && !strings.HasSuffix(strings.ToLower(u.Hostname()), strings.ToLower(rules.Site)) {
		return false
	}
	for _, exclude := range rules.LinkExcludes {
		if strings.Contains(candidate, exclude) {
			return false
		}
	}
	if len(rules.LinkPatterns) == 0 {
		return true
	}
	for _, pattern := range rules.LinkPatterns {
		if pattern.MatchString(candidate) {
			return true
		}
	}
	return false
}
