package domain

import (
	"strings"
	"time"
)

// Article is the unit of persistence: metadata for one news article,
// keyed by its canonical URL.
type Article struct {
	URL           string
	Title         string
	Description   string
	Image         string
	Author        string
	DatePublished *time.Time
	DateModified  *time.Time
	FetchedAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Source        string
	Section       string
	Site          string
}

// BestDate returns the most relevant timestamp for feed ordering:
// published, then modified, then fetch time.
func (a Article) BestDate() time.Time {
	if a.DatePublished != nil {
		return *a.DatePublished
	}
	if a.DateModified != nil {
		return *a.DateModified
	}
	return a.FetchedAt
}

// Filters holds per-section content exclusion rules.
type Filters struct {
	ExcludeAuthors []string `yaml:"excludeAuthors"`
	ExcludeTerms   []string `yaml:"excludeTerms"`
}

// Excludes reports whether the article matches any exclusion rule.
// Matching is case-insensitive substring: authors against the author field,
// terms against title and description.
func (f Filters) Excludes(a Article) bool {
	if author := strings.ToLower(a.Author); author != "" {
		for _, excluded := range f.ExcludeAuthors {
			if excluded != "" && strings.Contains(author, strings.ToLower(excluded)) {
				return true
			}
		}
	}

	title := strings.ToLower(a.Title)
	description := strings.ToLower(a.Description)
	for _, term := range f.ExcludeTerms {
		t := strings.ToLower(term)
		if t == "" {
			continue
		}
		if strings.Contains(title, t) || strings.Contains(description, t) {
			return true
		}
	}

	return false
}
