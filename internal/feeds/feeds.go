// Package feeds renders stored articles as RSS 2.0 and Atom 1.0 documents.
// It trusts the store's ordering and filtering; no re-sorting happens here.
package feeds

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"sportfeeds/internal/config"
	"sportfeeds/internal/domain"
)

const feedTTLMinutes = 15

// Renderer turns article sequences into feed XML for one configured feed.
type Renderer struct {
	generator string
}

// NewRenderer builds a renderer with the advertised generator string.
func NewRenderer() *Renderer {
	return &Renderer{generator: "sportfeeds feed generator"}
}

// RSS renders an RSS 2.0 document. selfURL is the absolute URL the feed is
// served from.
func (r *Renderer) RSS(articles []domain.Article, src config.SourceConfig, sec config.SectionConfig, selfURL string) (string, error) {
	feed := r.baseFeed(articles, src, sec, selfURL)

	rss := (&feeds.Rss{Feed: feed}).RssFeed()
	rss.Language = src.Language
	rss.Ttl = feedTTLMinutes
	rss.Generator = r.generator

	out, err := feeds.ToXML(rss)
	if err != nil {
		return "", fmt.Errorf("render rss: %w", err)
	}
	return out, nil
}

// Atom renders an Atom 1.0 document.
func (r *Renderer) Atom(articles []domain.Article, src config.SourceConfig, sec config.SectionConfig, selfURL string) (string, error) {
	feed := r.baseFeed(articles, src, sec, selfURL)

	out, err := feed.ToAtom()
	if err != nil {
		return "", fmt.Errorf("render atom: %w", err)
	}
	return out, nil
}

func (r *Renderer) baseFeed(articles []domain.Article, src config.SourceConfig, sec config.SectionConfig, selfURL string) *feeds.Feed {
	feed := &feeds.Feed{
		Id:          selfURL,
		Title:       fmt.Sprintf("%s - %s", src.Name, sec.Name),
		Link:        &feeds.Link{Href: src.BaseURL},
		Description: sec.Description,
		Updated:     time.Now().UTC(),
	}

	// The newest article (the store returns newest-first) stamps the feed.
	if len(articles) > 0 {
		feed.Updated = articles[0].BestDate()
	}

	for _, a := range articles {
		feed.Items = append(feed.Items, itemFrom(a))
	}
	return feed
}

func itemFrom(a domain.Article) *feeds.Item {
	description := a.Description
	if description == "" {
		description = a.Title
	}

	item := &feeds.Item{
		Id:          a.URL,
		Title:       a.Title,
		Link:        &feeds.Link{Href: a.URL},
		Description: description,
		Created:     a.BestDate(),
	}

	if a.DateModified != nil {
		item.Updated = *a.DateModified
	} else {
		item.Updated = a.BestDate()
	}
	if a.Author != "" {
		item.Author = &feeds.Author{Name: a.Author}
	}
	if a.Image != "" {
		item.Enclosure = &feeds.Enclosure{Url: a.Image, Length: "0", Type: MimeType(a.Image)}
	}

	return item
}

// MimeType infers an image MIME type from the URL's extension, defaulting
// to JPEG for feed-reader compatibility.
func MimeType(imageURL string) string {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "image/jpeg"
	}

	switch {
	case strings.HasSuffix(strings.ToLower(parsed.Path), ".png"):
		return "image/png"
	case strings.HasSuffix(strings.ToLower(parsed.Path), ".gif"):
		return "image/gif"
	case strings.HasSuffix(strings.ToLower(parsed.Path), ".webp"):
		return "image/webp"
	case strings.HasSuffix(strings.ToLower(parsed.Path), ".svg"):
		return "image/svg+xml"
	default:
		return "image/jpeg"
	}
}
