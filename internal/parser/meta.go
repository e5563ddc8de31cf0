package parser

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/blogscope/internal/types"
)

// PageMeta is the metadata of a single post page used for enrichment.
type PageMeta struct {
	Title       string
	Description string
	ImageURL    string
	Author      string
	PublishedAt *time.Time
	Canonical   string
}

// ExtractMeta reads OpenGraph, article:*, twitter:* and standard meta tags,
// falling back to a posting in the page's JSON-LD.
func ExtractMeta(doc *goquery.Document, base *url.URL) PageMeta {
	meta := func(sel string) string {
		v, _ := doc.Find(sel).First().Attr("content")
		return strings.TrimSpace(v)
	}
	first := func(vals ...string) string {
		for _, v := range vals {
			if v != "" {
				return v
			}
		}
		return ""
	}

	m := PageMeta{
		Title: first(
			meta(`meta[property="og:title"]`),
			meta(`meta[name="twitter:title"]`),
			CleanText(doc.Find("h1").First().Text()),
			CleanText(doc.Find("title").First().Text()),
		),
		Description: first(
			meta(`meta[property="og:description"]`),
			meta(`meta[name="description"]`),
			meta(`meta[name="twitter:description"]`),
		),
		Author: first(
			meta(`meta[name="author"]`),
			meta(`meta[property="article:author"]`),
			meta(`meta[name="parsely-author"]`),
			CleanText(doc.Find(`[rel="author"]`).First().Text()),
		),
	}
	if img := first(meta(`meta[property="og:image"]`), meta(`meta[name="twitter:image"]`), meta(`meta[property="og:image:url"]`)); img != "" {
		m.ImageURL = types.ResolveURL(base, img)
	}
	if c, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		m.Canonical = types.ResolveURL(base, c)
	}

	dt, _ := doc.Find("time[datetime]").First().Attr("datetime")
	m.PublishedAt = ParseDate(first(
		meta(`meta[property="article:published_time"]`),
		meta(`meta[name="date"]`),
		meta(`meta[itemprop="datePublished"]`),
		meta(`meta[name="publish-date"]`),
		meta(`meta[name="parsely-pub-date"]`),
		dt,
	))

	if m.PublishedAt == nil || m.Author == "" {
		if posts, _ := ExtractJSONLD(doc, base, ""); len(posts) > 0 {
			if m.PublishedAt == nil {
				m.PublishedAt = posts[0].PublishedAt
			}
			if m.Author == "" {
				m.Author = posts[0].Author
			}
		}
	}
	return m
}
