package extract

import (
	"encoding/json"

	"github.com/PuerkitoBio/goquery"
)

// articleTypes are the JSON-LD types treated as article-like.
var articleTypes = map[string]bool{
	"Article":     true,
	"NewsArticle": true,
	"BlogPosting": true,
}

// fromJSONLD walks every ld+json script on the page and returns the
// metadata of the first article-like node, looking inside @graph wrappers
// and top-level arrays. Malformed blocks are skipped.
func fromJSONLD(doc *goquery.Document) Partial {
	var result Partial

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}

		for _, item := range flattenNodes(raw) {
			if !isArticleNode(item) {
				continue
			}
			result = partialFromNode(item)
			return false
		}
		return true
	})

	return result
}

func flattenNodes(raw any) []map[string]any {
	var nodes []map[string]any
	switch v := raw.(type) {
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			for _, g := range graph {
				if m, ok := g.(map[string]any); ok {
					nodes = append(nodes, m)
				}
			}
			return nodes
		}
		nodes = append(nodes, v)
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				nodes = append(nodes, m)
			}
		}
	}
	return nodes
}

// isArticleNode accepts both a single @type string and the array form.
func isArticleNode(node map[string]any) bool {
	switch t := node["@type"].(type) {
	case string:
		return articleTypes[t]
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && articleTypes[s] {
				return true
			}
		}
	}
	return false
}

func partialFromNode(node map[string]any) Partial {
	p := Partial{
		Title:       stringField(node["headline"]),
		Description: stringField(node["description"]),
		Image:       imageField(node["image"]),
		Author:      authorField(node["author"]),
	}
	if p.Title == "" {
		p.Title = stringField(node["name"])
	}
	p.DatePublished = ParseDate(stringField(node["datePublished"]))
	p.DateModified = ParseDate(stringField(node["dateModified"]))
	return p
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

// imageField accepts a URL string, an ImageObject, or a list of either.
func imageField(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case map[string]any:
		return stringField(img["url"])
	case []any:
		if len(img) > 0 {
			return imageField(img[0])
		}
	}
	return ""
}

// authorField accepts a name string, a Person object, or a list of either.
func authorField(v any) string {
	switch a := v.(type) {
	case string:
		return a
	case map[string]any:
		return stringField(a["name"])
	case []any:
		if len(a) > 0 {
			return authorField(a[0])
		}
	}
	return ""
}
