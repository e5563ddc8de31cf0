package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/blogscope/internal/types"
)

// ErrNoState is returned when a page carries no embedded state blob.
var ErrNoState = errors.New("no embedded state found")

// NextData returns the parsed __NEXT_DATA__ object of a Next.js page.
func NextData(doc *goquery.Document) (map[string]any, error) {
	return ScriptJSON(doc, "script#__NEXT_DATA__")
}

// ScriptJSON parses the text of the first script matching selector.
func ScriptJSON(doc *goquery.Document, selector string) (map[string]any, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, ErrNoState
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(sel.Text())), &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", selector, err)
	}
	return out, nil
}

// AssignedJSON finds `name = {...}` in an inline script and parses the
// object literal, which must be valid JSON.
func AssignedJSON(doc *goquery.Document, name string) (map[string]any, error) {
	var found string
	doc.Find("script:not([src])").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		idx := strings.Index(text, name)
		if idx < 0 {
			return true
		}
		rest := text[idx+len(name):]
		eq := strings.Index(rest, "=")
		if eq < 0 {
			return true
		}
		found = balancedObject(rest[eq+1:])
		return found == ""
	})
	if found == "" {
		return nil, ErrNoState
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(found), &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}

// balancedObject returns the first brace-balanced {...} in s, honouring
// string literals.
func balancedObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth, inStr, esc := 0, false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case inStr && c == '\\':
			esc = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// ApolloState returns the normalized Apollo cache of a page, from either a
// window.__APOLLO_STATE__ assignment or the Next.js page props.
func ApolloState(doc *goquery.Document) (map[string]any, error) {
	if st, err := AssignedJSON(doc, "__APOLLO_STATE__"); err == nil {
		return st, nil
	}
	nd, err := NextData(doc)
	if err != nil {
		return nil, err
	}
	for _, path := range []string{"props.apolloState", "props.pageProps.apolloState", "props.pageProps.__APOLLO_STATE__", "props.pageProps.initialApolloState"} {
		if v, ok := WalkPath(nd, path); ok {
			if m, ok := v.(map[string]any); ok {
				return m, nil
			}
		}
	}
	return nil, ErrNoState
}

// WalkPath follows a dot path ("props.pageProps.posts.0.title") through
// decoded JSON. Numeric segments index arrays.
func WalkPath(v any, path string) (any, bool) {
	if path == "" || path == "." {
		return v, v != nil
	}
	cur := v
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// Array returns the array at path, or nil.
func Array(v any, path string) []any {
	got, ok := WalkPath(v, path)
	if !ok {
		return nil
	}
	arr, _ := got.([]any)
	return arr
}

// String returns the first non-empty scalar at any of the paths, formatted
// as a string.
func String(v any, paths ...string) string {
	for _, p := range paths {
		got, ok := WalkPath(v, p)
		if !ok {
			continue
		}
		switch s := got.(type) {
		case string:
			if strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(s)
		}
	}
	return ""
}

// Resolve replaces an Apollo {"__ref": "Type:id"} link by its entity.
func Resolve(state map[string]any, v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if ref, ok := m["__ref"].(string); ok {
		if ent, ok := state[ref]; ok {
			return ent
		}
	}
	return v
}

// EntitiesOfType returns the Apollo cache entries with the given __typename,
// ordered by cache key for determinism.
func EntitiesOfType(state map[string]any, typename string) []map[string]any {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []map[string]any
	for _, k := range keys {
		m, ok := state[k].(map[string]any)
		if ok && m["__typename"] == typename {
			out = append(out, m)
		}
	}
	return out
}

// FieldMap names where each post field lives inside a JSON record. Each
// entry may list several dot paths; the first non-empty one wins.
type FieldMap struct {
	Title    []string `yaml:"title"`
	URL      []string `yaml:"url"`
	Slug     []string `yaml:"slug"`
	Date     []string `yaml:"date"`
	Author   []string `yaml:"author"`
	Summary  []string `yaml:"summary"`
	Image    []string `yaml:"image"`
	Category []string `yaml:"category"`
	// URLTemplate builds the post URL from the slug when no URL field is
	// present, e.g. "https://example.com/blog/{slug}".
	URLTemplate string `yaml:"url_template"`
}

// DefaultFieldMap covers the common CMS field names.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Title:    []string{"title", "headline", "name", "title.rendered"},
		URL:      []string{"url", "link", "permalink", "href", "canonical_url"},
		Slug:     []string{"slug", "path", "uri"},
		Date:     []string{"publishedAt", "published_at", "datePublished", "date", "publishDate", "publish_date", "created_at", "createdAt", "firstPublishedAt"},
		Author:   []string{"author.name", "author", "authors.0.name", "byline", "creator"},
		Summary:  []string{"excerpt", "description", "summary", "subtitle", "excerpt.rendered", "abstract"},
		Image:    []string{"image.url", "image", "featuredImage.url", "heroImage.url", "thumbnail", "coverImage.url", "cover_image", "feature_image"},
		Category: []string{"category.name", "category", "tags.0.name", "type"},
	}
}

// merge fills empty entries of fm from def.
func (fm FieldMap) merge(def FieldMap) FieldMap {
	pick := func(a, b []string) []string {
		if len(a) > 0 {
			return a
		}
		return b
	}
	fm.Title = pick(fm.Title, def.Title)
	fm.URL = pick(fm.URL, def.URL)
	fm.Slug = pick(fm.Slug, def.Slug)
	fm.Date = pick(fm.Date, def.Date)
	fm.Author = pick(fm.Author, def.Author)
	fm.Summary = pick(fm.Summary, def.Summary)
	fm.Image = pick(fm.Image, def.Image)
	fm.Category = pick(fm.Category, def.Category)
	return fm
}

// PostFromRecord maps one decoded JSON record to a post. With a non-nil
// state, Apollo references are resolved before reading author and image.
func PostFromRecord(rec any, fm FieldMap, base *url.URL, sourceID string, state map[string]any) (types.Post, error) {
	fm = fm.merge(DefaultFieldMap())
	if state != nil {
		if m, ok := rec.(map[string]any); ok {
			resolved := make(map[string]any, len(m))
			for k, v := range m {
				resolved[k] = Resolve(state, v)
				if arr, ok := v.([]any); ok {
					items := make([]any, len(arr))
					for i, x := range arr {
						items[i] = Resolve(state, x)
					}
					resolved[k] = items
				}
			}
			rec = resolved
		}
	}

	title := CleanText(StripTags(String(rec, fm.Title...)))
	link := String(rec, fm.URL...)
	if link == "" {
		if slug := strings.Trim(String(rec, fm.Slug...), "/"); slug != "" && fm.URLTemplate != "" {
			link = strings.ReplaceAll(fm.URLTemplate, "{slug}", slug)
		} else if slug != "" {
			link = "/" + slug
		}
	}
	abs := types.ResolveURL(base, link)
	if title == "" || abs == "" {
		return types.Post{}, fmt.Errorf("record missing title or url (title=%q url=%q)", title, link)
	}

	p := types.NewPost(sourceID, title, abs)
	p.PublishedAt = ParseDate(String(rec, fm.Date...))
	p.Author = String(rec, fm.Author...)
	p.Summary = Truncate(CleanText(StripTags(String(rec, fm.Summary...))), 500)
	if img := String(rec, fm.Image...); img != "" {
		p.ImageURL = types.ResolveURL(base, img)
	}
	p.SubCategory = String(rec, fm.Category...)
	return p, nil
}
