// Package pagination detects a listing's page-2 link and replays its URL
// convention for later pages.
package pagination

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/blogscope/internal/types"
)

var (
	page2Query = regexp.MustCompile(`(?i)(^|&)(page|p|paged)=2(&|$)`)
	page2Path  = regexp.MustCompile(`(?i)/(page|p)/2/?$`)
	nextTexts  = map[string]bool{
		"next": true, "next page": true, "next »": true, "next ›": true, "next →": true,
		"older": true, "older posts": true, "older entries": true, "load more": true,
		"›": true, "»": true, "→": true,
	}
)

// DetectNextPage looks for the link to page 2 of a listing: rel=next, an
// href carrying a page-2 query or path segment, or an anchor reading "2" or
// "Next". It returns the absolute same-host URL of the best candidate.
func DetectNextPage(body []byte, pageURL string) (string, bool) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	accept := func(href string) string {
		abs := types.ResolveURL(base, href)
		if abs == "" {
			return ""
		}
		u, _ := url.Parse(abs)
		if u == nil || !sameSite(u, base) || types.CanonicalURL(abs) == types.CanonicalURL(pageURL) {
			return ""
		}
		return abs
	}

	for _, n := range htmlquery.Find(doc, "//link[@rel='next'] | //a[contains(concat(' ', normalize-space(@rel), ' '), ' next ')]") {
		if abs := accept(htmlquery.SelectAttr(n, "href")); abs != "" {
			return abs, true
		}
	}

	anchors := htmlquery.Find(doc, "//a[@href]")
	var byHref, byText string
	for _, a := range anchors {
		abs := accept(htmlquery.SelectAttr(a, "href"))
		if abs == "" {
			continue
		}
		u, _ := url.Parse(abs)
		hrefHit := page2Path.MatchString(u.Path) || page2Query.MatchString(u.RawQuery)
		text := anchorText(a)
		if hrefHit && byHref == "" {
			byHref = abs
			if text == "2" {
				return abs, true
			}
		}
		if byText == "" && (text == "2" || nextTexts[text]) {
			byText = abs
		}
	}
	if byHref != "" {
		return byHref, true
	}
	if byText != "" {
		return byText, true
	}
	return "", false
}

func anchorText(a *html.Node) string {
	t := strings.ToLower(strings.Join(strings.Fields(htmlquery.InnerText(a)), " "))
	if t == "" {
		t = strings.ToLower(strings.TrimSpace(htmlquery.SelectAttr(a, "aria-label")))
	}
	return t
}

func sameSite(a, b *url.URL) bool {
	return strings.TrimPrefix(strings.ToLower(a.Hostname()), "www.") == strings.TrimPrefix(strings.ToLower(b.Hostname()), "www.")
}
