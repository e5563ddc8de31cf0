package types

import "strings"

// Category is a category-scoped listing of a source.
type Category struct {
	ID   string `json:"id"   yaml:"id"`
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url"  yaml:"url"`
}

// Source is the static configuration of one blog.
type Source struct {
	ID          string         `json:"id"                    yaml:"id"`
	Name        string         `json:"name"                  yaml:"name"`
	Homepage    string         `json:"homepage"              yaml:"homepage"`
	RSS         string         `json:"rss,omitempty"         yaml:"rss,omitempty"`
	BlogListURL string         `json:"blogListUrl,omitempty" yaml:"blog_list_url,omitempty"`
	AllowScrape bool           `json:"allowScrape"           yaml:"allow_scrape"`
	Categories  []Category     `json:"categories,omitempty"  yaml:"categories,omitempty"`
	Adapter     string         `json:"adapter,omitempty"     yaml:"adapter,omitempty"`
	Render      bool           `json:"render,omitempty"      yaml:"render,omitempty"`
	Options     map[string]any `json:"-"                     yaml:"options,omitempty"`
}

// PaginationState records the page-N template detected for a listing.
type PaginationState struct {
	CurrentPatternURL string `json:"currentPatternUrl,omitempty"`
	PagesFetched      int    `json:"pagesFetched"`
}

// FetchOptions are the caller-facing parameters of one page request.
type FetchOptions struct {
	Page            int
	MaxPosts        int
	Category        string
	ResearchArea    string
	DetectedPattern string
	// ForceOverwrite replaces the cached set even when the refetch is empty.
	ForceOverwrite bool
	// ForceRefresh refetches page 1 even when the cache is fresh.
	ForceRefresh bool
}

// Normalize fills defaults.
func (o FetchOptions) Normalize(defaultMax int) FetchOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.MaxPosts < 1 {
		o.MaxPosts = defaultMax
	}
	return o
}

// FilterKey identifies the cache record for the source and filters.
func (o FetchOptions) FilterKey(sourceID string) string {
	var b strings.Builder
	b.WriteString(sourceID)
	if o.Category != "" {
		b.WriteString(":category=")
		b.WriteString(strings.ToLower(o.Category))
	}
	if o.ResearchArea != "" {
		b.WriteString(":area=")
		b.WriteString(strings.ToLower(o.ResearchArea))
	}
	return b.String()
}

// FetchResult is the output contract shared by every adapter.
type FetchResult struct {
	Posts           []Post   `json:"posts"`
	HasMore         bool     `json:"hasMore"`
	NextPageURL     string   `json:"nextPageUrl,omitempty"`
	DetectedPattern string   `json:"detectedPattern,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	// Strategy names the extraction strategy that produced the posts.
	Strategy string `json:"strategy,omitempty"`
}
