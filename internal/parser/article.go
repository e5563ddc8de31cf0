package parser

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ArticleText returns the readable body text of a post page, whitespace
// collapsed and truncated to limit runes. It falls back to the text of the
// main content element when readability finds nothing.
func ArticleText(html []byte, pageURL *url.URL, limit int) string {
	if article, err := readability.FromReader(bytes.NewReader(html), pageURL); err == nil {
		if text := CleanText(article.TextContent); len(text) > 200 {
			return Truncate(text, limit)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, header, footer, aside").Remove()
	for _, sel := range []string{"article", "main", "[role='main']", ".post-content", ".entry-content", "body"} {
		if text := CleanText(doc.Find(sel).First().Text()); text != "" {
			return Truncate(text, limit)
		}
	}
	return ""
}

// StripTags returns the text content of an HTML fragment.
func StripTags(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return CleanText(doc.Text())
}

// FirstImage returns the src of the first <img> in an HTML fragment.
func FirstImage(fragment string, base *url.URL) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return containerImage(doc.Selection, base)
}
