package types

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

// MaxRawHTMLChars bounds the body text kept on a post.
const MaxRawHTMLChars = 5000

// Post is the normalized record every adapter produces.
type Post struct {
	ID          string     `json:"id"                    bson:"id"`
	SourceID    string     `json:"sourceId"              bson:"source_id"`
	Title       string     `json:"title"                 bson:"title"`
	URL         string     `json:"url"                   bson:"url"`
	Author      string     `json:"author,omitempty"      bson:"author,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty" bson:"published_at,omitempty"`
	Summary     string     `json:"summary,omitempty"     bson:"summary,omitempty"`
	ImageURL    string     `json:"imageUrl,omitempty"    bson:"image_url,omitempty"`
	Category    string     `json:"category,omitempty"    bson:"category,omitempty"`
	SubCategory string     `json:"subCategory,omitempty" bson:"sub_category,omitempty"`
	Venue       string     `json:"venue,omitempty"       bson:"venue,omitempty"`
	RawHTML     string     `json:"rawHtml,omitempty"     bson:"raw_html,omitempty"`
	FetchedAt   time.Time  `json:"fetchedAt"             bson:"fetched_at"`
}

// NewPost builds a post with its URL normalized and ID derived.
func NewPost(sourceID, title, rawURL string) Post {
	u := CanonicalURL(rawURL)
	return Post{
		ID:        PostID(sourceID, u),
		SourceID:  sourceID,
		Title:     strings.TrimSpace(title),
		URL:       u,
		FetchedAt: time.Now().UTC(),
	}
}

// Valid reports whether the post has the required title and absolute URL.
func (p Post) Valid() bool {
	if strings.TrimSpace(p.Title) == "" || p.URL == "" {
		return false
	}
	u, err := url.Parse(p.URL)
	return err == nil && u.IsAbs() && u.Host != ""
}

// SummaryInput is what a summarizer consumes.
type SummaryInput struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Content     string     `json:"content"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// SummaryInput returns the summarizer payload for the post.
func (p Post) SummaryInput() SummaryInput {
	content := p.RawHTML
	if content == "" {
		content = p.Summary
	}
	return SummaryInput{Title: p.Title, URL: p.URL, Content: content, Author: p.Author, PublishedAt: p.PublishedAt}
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// PostID derives a stable identifier from the source and the URL's last path
// segment. The same URL always yields the same ID.
func PostID(sourceID, rawURL string) string {
	canon := CanonicalURL(rawURL)
	slug := ""
	if u, err := url.Parse(canon); err == nil {
		segs := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i := len(segs) - 1; i >= 0; i-- {
			s := segs[i]
			if dot := strings.LastIndex(s, "."); dot > 0 {
				s = s[:dot]
			}
			s = strings.Trim(slugCleaner.ReplaceAllString(strings.ToLower(s), "-"), "-")
			if s != "" {
				slug = s
				break
			}
		}
		// Query-addressed posts (?p=123) share a path, so fold the query in.
		if u.RawQuery != "" {
			q := strings.Trim(slugCleaner.ReplaceAllString(strings.ToLower(u.RawQuery), "-"), "-")
			if slug == "" {
				slug = q
			} else {
				slug += "-" + q
			}
		}
	}
	if slug == "" {
		sum := sha1.Sum([]byte(canon))
		slug = hex.EncodeToString(sum[:])[:12]
	}
	return sourceID + "-" + slug
}

// CanonicalURL normalizes a URL for deduplication:
// lowercases scheme and host, drops the fragment, default ports, tracking
// parameters and a trailing slash, and sorts the query.
func CanonicalURL(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = u.Hostname()
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			if isTrackingParam(k) {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var pairs []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(pairs, "&")
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

func isTrackingParam(k string) bool {
	k = strings.ToLower(k)
	return strings.HasPrefix(k, "utm_") || k == "fbclid" || k == "gclid"
}

// ResolveURL resolves href against base, returning "" for pseudo-links
// (javascript:, mailto:, tel:, data:, bare fragments) and unparsable input.
func ResolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || IsPseudoLink(href) {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	var abs *url.URL
	if base != nil {
		abs = base.ResolveReference(ref)
	} else {
		abs = ref
	}
	if !abs.IsAbs() || (abs.Scheme != "http" && abs.Scheme != "https") {
		return ""
	}
	return abs.String()
}

// IsPseudoLink reports hrefs that never point at a document.
func IsPseudoLink(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	if strings.HasPrefix(h, "#") {
		return true
	}
	for _, p := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(h, p) {
			return true
		}
	}
	return false
}

// MergePosts appends the posts of incoming whose canonical URL is not already
// present, keeping every existing post. It returns the merged set and the
// newly added posts in incoming order.
func MergePosts(existing, incoming []Post) (merged, added []Post) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged = make([]Post, 0, len(existing)+len(incoming))
	for _, p := range existing {
		k := CanonicalURL(p.URL)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, p)
	}
	for _, p := range incoming {
		k := CanonicalURL(p.URL)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, p)
		added = append(added, p)
	}
	return merged, added
}

// DedupPosts removes later posts whose canonical URL repeats an earlier one.
func DedupPosts(posts []Post) []Post {
	out, _ := MergePosts(nil, posts)
	return out
}

// SortByDateDesc orders posts newest first; undated posts go last, stable.
func SortByDateDesc(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i].PublishedAt, posts[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}

// Slice returns the 1-based page of size n from posts and whether more remain.
func Slice(posts []Post, page, n int) ([]Post, bool) {
	if page < 1 {
		page = 1
	}
	if n <= 0 {
		return posts, false
	}
	start := (page - 1) * n
	if start >= len(posts) {
		return nil, false
	}
	end := start + n
	if end > len(posts) {
		end = len(posts)
	}
	return posts[start:end], end < len(posts)
}
