// Package extract turns a fetched article page into a normalized article
// record via a priority-ordered fallback chain: JSON-LD structured data,
// then Open Graph tags, then generic meta tags, then the page title.
package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sportfeeds/internal/domain"
)

// Partial carries the fields one stage managed to extract.
type Partial struct {
	Title         string
	Description   string
	Image         string
	Author        string
	DatePublished *time.Time
	DateModified  *time.Time
}

// Stage is one pure extraction pass over the parsed document.
type Stage func(doc *goquery.Document) Partial

// stages in priority order; a later stage only fills fields the earlier
// stages left empty.
var stages = []Stage{fromJSONLD, fromOpenGraph, fromMetaTags, fromPageTitle}

// Metadata extracts article metadata from an HTML page body. It never fails
// hard: worst case the result carries only the URL and whatever title the
// page exposes. The caller fills source, section, site and fetch time.
func Metadata(body []byte, pageURL string) domain.Article {
	article := domain.Article{URL: pageURL}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return article
	}

	var merged Partial
	for _, stage := range stages {
		merged = fill(merged, stage(doc))
	}

	article.Title = cleanText(merged.Title)
	article.Description = cleanText(merged.Description)
	article.Author = cleanText(merged.Author)
	article.Image = normalizeImageURL(merged.Image, pageURL)
	article.DatePublished = merged.DatePublished
	article.DateModified = merged.DateModified
	if article.DateModified == nil {
		article.DateModified = article.DatePublished
	}

	return article
}

// fill merges left-to-right: fields already set win.
func fill(base, next Partial) Partial {
	if base.Title == "" {
		base.Title = next.Title
	}
	if base.Description == "" {
		base.Description = next.Description
	}
	if base.Image == "" {
		base.Image = next.Image
	}
	if base.Author == "" {
		base.Author = next.Author
	}
	if base.DatePublished == nil {
		base.DatePublished = next.DatePublished
	}
	if base.DateModified == nil {
		base.DateModified = next.DateModified
	}
	return base
}

func fromOpenGraph(doc *goquery.Document) Partial {
	p := Partial{
		Title:       metaContent(doc, `meta[property="og:title"]`),
		Description: metaContent(doc, `meta[property="og:description"]`),
		Image:       metaContent(doc, `meta[property="og:image"]`),
	}
	p.DatePublished = ParseDate(metaContent(doc, `meta[property="article:published_time"]`))
	p.DateModified = ParseDate(metaContent(doc, `meta[property="article:modified_time"]`))
	return p
}

func fromMetaTags(doc *goquery.Document) Partial {
	return Partial{
		Description: metaContent(doc, `meta[name="description"]`),
		Author:      metaContent(doc, `meta[name="author"]`),
	}
}

func fromPageTitle(doc *goquery.Document) Partial {
	return Partial{Title: strings.TrimSpace(doc.Find("title").First().Text())}
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

var whitespace = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// normalizeImageURL strips query noise added by image CDNs, resolves
// relative paths against the article page and drops anything that does not
// end up as an absolute http(s) URL.
func normalizeImageURL(raw, pageURL string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}

	img, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	if !img.IsAbs() {
		base, err := url.Parse(pageURL)
		if err != nil {
			return ""
		}
		img = base.ResolveReference(img)
	}

	if img.Scheme != "http" && img.Scheme != "https" || img.Host == "" {
		return ""
	}
	return img.String()
}
