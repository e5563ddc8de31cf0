// Package parser holds the pure extraction functions: HTML or JSON in, posts
// out. Nothing here performs I/O.
package parser

import (
	"bytes"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/blogscope/internal/types"
)

// Strategy names reported on a FetchResult.
const (
	StrategyJSONLD   = "jsonld"
	StrategyState    = "embedded-state"
	StrategySemantic = "semantic-html"
	StrategyAnchors  = "anchors"
	StrategyFeed     = "feed"
	StrategyAPI      = "api"
	StrategySitemap  = "sitemap"
)

// MinTitleLen is the shortest title accepted from HTML heuristics.
const MinTitleLen = 5

// Options tune the HTML heuristics for one source.
type Options struct {
	// ContainerSelector replaces the default article-like container list.
	ContainerSelector string
	// TitleSelector picks the title inside a container before the defaults.
	TitleSelector string
	// LinkPattern replaces the default post-URL heuristic.
	LinkPattern *regexp.Regexp
	// SameHost drops links that leave the listing's host.
	SameHost bool
	// SkipJSONLD disables the structured-data strategy.
	SkipJSONLD bool
}

// Result is the outcome of Extract.
type Result struct {
	Posts    []types.Post
	Strategy string
}

// Extractor applies the extraction strategies in priority order and logs
// recovered parse errors.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger.With("component", "extractor")}
}

// Extract runs JSON-LD first and semantic HTML second. The first strategy
// that yields a valid post wins; results are never mixed.
func (e *Extractor) Extract(html []byte, pageURL, sourceID string, opts Options) Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		e.logger.Warn("unparseable html", "source", sourceID, "url", pageURL, "error", err)
		return Result{}
	}
	return e.ExtractDocument(doc, pageURL, sourceID, opts)
}

// ExtractDocument is Extract over an already parsed document.
func (e *Extractor) ExtractDocument(doc *goquery.Document, pageURL, sourceID string, opts Options) Result {
	base, _ := url.Parse(pageURL)

	if !opts.SkipJSONLD {
		posts, errs := ExtractJSONLD(doc, base, sourceID)
		for _, perr := range errs {
			e.logger.Warn("skipping malformed json-ld block", "source", sourceID, "url", pageURL, "error", perr)
		}
		if len(posts) > 0 {
			return Result{Posts: posts, Strategy: StrategyJSONLD}
		}
	}

	if posts := ExtractSemantic(doc, base, sourceID, opts); len(posts) > 0 {
		return Result{Posts: posts, Strategy: StrategySemantic}
	}
	if posts := ExtractAnchors(doc, base, sourceID, opts); len(posts) > 0 {
		return Result{Posts: posts, Strategy: StrategyAnchors}
	}
	return Result{}
}
