package parser

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/blogscope/internal/types"
)

var postingTypes = map[string]bool{
	"blogposting":      true,
	"article":          true,
	"newsarticle":      true,
	"techarticle":      true,
	"scholarlyarticle": true,
	"report":           true,
}

// ExtractJSONLD reads every application/ld+json block. Blocks that fail to
// parse are reported as ParseErrors and skipped; the rest still count.
func ExtractJSONLD(doc *goquery.Document, base *url.URL, sourceID string) ([]types.Post, []error) {
	var (
		posts []types.Post
		errs  []error
	)
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, sel *goquery.Selection) {
		raw := cleanJSONLD(sel.Text())
		if raw == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			errs = append(errs, &types.ParseError{
				URL:      urlString(base),
				Selector: fmt.Sprintf(`script[type="application/ld+json"]:nth(%d)`, i),
				Err:      err,
			})
			return
		}
		collectPostings(data, base, sourceID, &posts, 0)
	})
	return types.DedupPosts(posts), errs
}

func cleanJSONLD(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<!--")
	s = strings.TrimSuffix(s, "-->")
	s = strings.TrimPrefix(strings.TrimSpace(s), "//<![CDATA[")
	s = strings.TrimSuffix(strings.TrimSpace(s), "//]]>")
	return strings.TrimSuffix(strings.TrimSpace(s), ";")
}

// collectPostings walks a JSON-LD value, unwrapping @graph, Blog, ItemList
// and CollectionPage containers down to posting nodes.
func collectPostings(v any, base *url.URL, sourceID string, out *[]types.Post, depth int) {
	if depth > 6 {
		return
	}
	switch node := v.(type) {
	case []any:
		for _, child := range node {
			collectPostings(child, base, sourceID, out, depth+1)
		}
	case map[string]any:
		if graph, ok := node["@graph"]; ok {
			collectPostings(graph, base, sourceID, out, depth+1)
		}
		switch {
		case hasType(node, postingTypes):
			if p, ok := postingFromJSONLD(node, base, sourceID); ok {
				*out = append(*out, p)
			}
		case hasType(node, map[string]bool{"blog": true}):
			collectPostings(node["blogPost"], base, sourceID, out, depth+1)
			collectPostings(node["blogPosts"], base, sourceID, out, depth+1)
		case hasType(node, map[string]bool{"itemlist": true}):
			collectListItems(node["itemListElement"], base, sourceID, out, depth+1)
		case hasType(node, map[string]bool{"collectionpage": true, "webpage": true}):
			collectPostings(node["mainEntity"], base, sourceID, out, depth+1)
			collectPostings(node["hasPart"], base, sourceID, out, depth+1)
		}
	}
}

func collectListItems(v any, base *url.URL, sourceID string, out *[]types.Post, depth int) {
	items, ok := v.([]any)
	if !ok {
		if v == nil {
			return
		}
		items = []any{v}
	}
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if inner, ok := m["item"].(map[string]any); ok {
			if hasType(inner, postingTypes) {
				collectPostings(inner, base, sourceID, out, depth+1)
				continue
			}
			m = inner
		}
		if hasType(m, postingTypes) {
			collectPostings(m, base, sourceID, out, depth+1)
			continue
		}
		// Bare ListItem: {"url": ..., "name": ...}
		if p, ok := postingFromJSONLD(m, base, sourceID); ok {
			*out = append(*out, p)
		}
	}
}

func postingFromJSONLD(m map[string]any, base *url.URL, sourceID string) (types.Post, bool) {
	title := firstString(m, "headline", "name", "alternativeHeadline")
	link := firstString(m, "url")
	if link == "" {
		switch me := m["mainEntityOfPage"].(type) {
		case string:
			link = me
		case map[string]any:
			link = firstString(me, "@id", "url")
		}
	}
	if link == "" {
		link = firstString(m, "@id")
	}
	abs := types.ResolveURL(base, link)
	if abs == "" || strings.TrimSpace(title) == "" {
		return types.Post{}, false
	}

	p := types.NewPost(sourceID, CleanText(title), abs)
	p.PublishedAt = ParseDate(firstString(m, "datePublished", "dateCreated", "uploadDate", "dateModified"))
	p.Author = jsonLDPeople(m["author"])
	p.Summary = Truncate(CleanText(firstString(m, "description", "abstract")), 500)
	if img := jsonLDImage(m["image"]); img != "" {
		p.ImageURL = types.ResolveURL(base, img)
	}
	if sec := firstString(m, "articleSection"); sec != "" {
		p.SubCategory = sec
	}
	return p, true
}

func hasType(m map[string]any, want map[string]bool) bool {
	switch t := m["@type"].(type) {
	case string:
		return want[strings.ToLower(t)]
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && want[strings.ToLower(s)] {
				return true
			}
		}
	}
	return false
}

func jsonLDPeople(v any) string {
	switch a := v.(type) {
	case string:
		return strings.TrimSpace(a)
	case map[string]any:
		return firstString(a, "name")
	case []any:
		var names []string
		for _, x := range a {
			if n := jsonLDPeople(x); n != "" {
				names = append(names, n)
			}
		}
		return strings.Join(names, ", ")
	}
	return ""
}

func jsonLDImage(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case map[string]any:
		return firstString(img, "url", "contentUrl", "@id")
	case []any:
		for _, x := range img {
			if s := jsonLDImage(x); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
