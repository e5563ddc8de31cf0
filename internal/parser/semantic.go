package parser

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/blogscope/internal/types"
)

// DefaultContainers are the article-like elements tried by ExtractSemantic.
const DefaultContainers = `article, .post, .blog-post, .post-card, .post-item, .blog-card, .entry, ` +
	`[class*="PostCard"], [class*="post-preview"], [class*="article-card"], [class*="BlogCard"], ` +
	`.card, li[class*="post"]`

var (
	// postURLPattern matches paths that look like an individual post.
	postURLPattern = regexp.MustCompile(`(?i)(/(blog|blogs|post|posts|article|articles|research|news|engineering|stories|insights|publications?)/[^/?#]+)|(/\d{4}/\d{1,2}/)`)

	// navPattern matches listing, taxonomy and paging links that share the
	// post prefixes but are not posts.
	navPattern = regexp.MustCompile(`(?i)/(page|tag|tags|category|categories|author|authors|topic|topics|search|feed|archive)(/|$|\?)`)

	titleSelectors = []string{"h1", "h2", "h3", "h4", "[class*='title']"}
	spaceRun       = regexp.MustCompile(`\s+`)
)

// IsPostURL reports whether the absolute URL looks like an individual post.
func IsPostURL(u string, pattern *regexp.Regexp) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	path := parsed.Path
	if pattern == nil {
		pattern = postURLPattern
	}
	if !pattern.MatchString(path) {
		return false
	}
	return !navPattern.MatchString(path)
}

// ExtractSemantic scans article-like containers. Each container contributes
// at most one post: its first link that passes the post-URL heuristic.
func ExtractSemantic(doc *goquery.Document, base *url.URL, sourceID string, opts Options) []types.Post {
	sel := opts.ContainerSelector
	if sel == "" {
		sel = DefaultContainers
	}

	var posts []types.Post
	doc.Find(sel).Each(func(_ int, c *goquery.Selection) {
		link := ""
		var anchor *goquery.Selection
		c.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if abs := acceptLink(a, base, opts); abs != "" {
				link, anchor = abs, a
				return false
			}
			return true
		})
		// The container itself may be the anchor.
		if link == "" && goquery.NodeName(c) == "a" {
			if abs := acceptLink(c, base, opts); abs != "" {
				link, anchor = abs, c
			}
		}
		if link == "" {
			return
		}

		title := containerTitle(c, anchor, opts.TitleSelector)
		if len([]rune(title)) < MinTitleLen {
			return
		}

		p := types.NewPost(sourceID, title, link)
		p.PublishedAt = containerDate(c)
		p.Author = containerAuthor(c)
		p.Summary = containerSummary(c, title)
		p.ImageURL = containerImage(c, base)
		posts = append(posts, p)
	})
	return types.DedupPosts(posts)
}

// ExtractAnchors is the flat fallback over every anchor outside page chrome.
func ExtractAnchors(doc *goquery.Document, base *url.URL, sourceID string, opts Options) []types.Post {
	var posts []types.Post
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if a.ParentsFiltered("nav, header, footer, aside, [role='navigation']").Length() > 0 {
			return
		}
		link := acceptLink(a, base, opts)
		if link == "" {
			return
		}
		title := anchorTitle(a)
		if len([]rune(title)) < MinTitleLen {
			return
		}
		posts = append(posts, types.NewPost(sourceID, title, link))
	})
	return types.DedupPosts(posts)
}

// acceptLink validates and resolves an anchor's href, returning "" when the
// link is a pseudo-link, the listing itself or not post-like.
func acceptLink(a *goquery.Selection, base *url.URL, opts Options) string {
	href, _ := a.Attr("href")
	if types.IsPseudoLink(href) {
		return ""
	}
	abs := types.ResolveURL(base, href)
	if abs == "" {
		return ""
	}
	if base != nil {
		if types.CanonicalURL(abs) == types.CanonicalURL(base.String()) {
			return ""
		}
		if opts.SameHost {
			u, _ := url.Parse(abs)
			if u == nil || !strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(base.Hostname(), "www.")) {
				return ""
			}
		}
	}
	if !IsPostURL(abs, opts.LinkPattern) {
		return ""
	}
	return abs
}

func containerTitle(c, anchor *goquery.Selection, custom string) string {
	sels := titleSelectors
	if custom != "" {
		sels = append([]string{custom}, sels...)
	}
	for _, s := range sels {
		if t := CleanText(c.Find(s).First().Text()); t != "" {
			return t
		}
	}
	if anchor != nil {
		return anchorTitle(anchor)
	}
	return ""
}

// anchorTitle prefers a heading inside the link, then the link text, then
// aria-label and title attributes.
func anchorTitle(a *goquery.Selection) string {
	if t := CleanText(a.Find("h1, h2, h3, h4").First().Text()); t != "" {
		return t
	}
	if t := CleanText(a.Text()); t != "" {
		return t
	}
	if t, ok := a.Attr("aria-label"); ok && strings.TrimSpace(t) != "" {
		return CleanText(t)
	}
	if t, ok := a.Attr("title"); ok {
		return CleanText(t)
	}
	return ""
}

func containerDate(c *goquery.Selection) *time.Time {
	t := c.Find("time").First()
	if t.Length() > 0 {
		if dt, ok := t.Attr("datetime"); ok {
			if d := ParseDate(dt); d != nil {
				return d
			}
		}
		if d := ParseDate(t.Text()); d != nil {
			return d
		}
	}
	for _, s := range []string{"[itemprop='datePublished']", "[class*='date']", "[class*='Date']"} {
		el := c.Find(s).First()
		if el.Length() == 0 {
			continue
		}
		if v, ok := el.Attr("content"); ok {
			if d := ParseDate(v); d != nil {
				return d
			}
		}
		if d := ParseDate(CleanText(el.Text())); d != nil {
			return d
		}
	}
	return nil
}

func containerAuthor(c *goquery.Selection) string {
	for _, s := range []string{"[rel='author']", "[itemprop='author']", ".author", "[class*='author']", ".byline"} {
		if t := CleanText(c.Find(s).First().Text()); t != "" {
			t = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(t, "By "), "by "))
			if len(t) <= 120 {
				return t
			}
		}
	}
	return ""
}

func containerSummary(c *goquery.Selection, title string) string {
	var summary string
	c.Find("p, [class*='excerpt'], [class*='description'], [class*='summary']").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := CleanText(p.Text())
		if t == "" || t == title || len(t) < 20 {
			return true
		}
		summary = t
		return false
	})
	return Truncate(summary, 500)
}

func containerImage(c *goquery.Selection, base *url.URL) string {
	img := c.Find("img").First()
	if img.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
		if v, ok := img.Attr(attr); ok && v != "" && !strings.HasPrefix(v, "data:") {
			return types.ResolveURL(base, v)
		}
	}
	if set, ok := img.Attr("srcset"); ok {
		first := strings.TrimSpace(strings.Split(set, ",")[0])
		if f := strings.Fields(first); len(f) > 0 {
			return types.ResolveURL(base, f[0])
		}
	}
	return ""
}

// CleanText collapses whitespace and trims.
func CleanText(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// Truncate cuts s to at most n runes on a word boundary where possible.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}
