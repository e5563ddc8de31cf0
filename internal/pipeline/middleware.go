package pipeline

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

// --- Built-in Middleware ---

// TrimMiddleware trims whitespace from all string fields.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(p *types.Post) (*types.Post, error) {
	for _, f := range []*string{&p.Title, &p.URL, &p.Author, &p.Summary, &p.ImageURL, &p.Category, &p.SubCategory, &p.Venue} {
		*f = strings.TrimSpace(*f)
	}
	return p, nil
}

// HTMLSanitizeMiddleware strips HTML tags from the text fields a listing
// may deliver as markup.
type HTMLSanitizeMiddleware struct {
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		stripRe: regexp.MustCompile(`<[^>]*>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(p *types.Post) (*types.Post, error) {
	for _, f := range []*string{&p.Title, &p.Author, &p.Summary, &p.Venue} {
		if *f == "" {
			continue
		}
		cleaned := m.stripRe.ReplaceAllString(*f, " ")
		cleaned = html.UnescapeString(cleaned)
		*f = strings.Join(strings.Fields(cleaned), " ")
	}
	return p, nil
}

// URLMiddleware canonicalizes the post URL and drops posts whose URL is not
// absolute http(s). Relative image URLs are cleared.
type URLMiddleware struct{}

func (m *URLMiddleware) Name() string { return "url" }

func (m *URLMiddleware) Process(p *types.Post) (*types.Post, error) {
	if p.URL == "" || types.IsPseudoLink(p.URL) {
		return nil, nil
	}
	u, err := url.Parse(p.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, nil
	}
	p.URL = types.CanonicalURL(p.URL)

	if p.ImageURL != "" {
		img, err := url.Parse(p.ImageURL)
		if err != nil || !img.IsAbs() {
			p.ImageURL = ""
		}
	}
	return p, nil
}

// RequiredFieldsMiddleware drops posts without a title or absolute URL.
type RequiredFieldsMiddleware struct{}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(p *types.Post) (*types.Post, error) {
	if !p.Valid() {
		return nil, nil
	}
	return p, nil
}

// IDMiddleware derives the post ID from its source and canonical URL so the
// same post always gets the same ID.
type IDMiddleware struct{}

func (m *IDMiddleware) Name() string { return "id" }

func (m *IDMiddleware) Process(p *types.Post) (*types.Post, error) {
	p.ID = types.PostID(p.SourceID, p.URL)
	return p, nil
}

// DateSanityMiddleware clears zero publication dates and dates further in
// the future than MaxSkew, and stamps FetchedAt.
type DateSanityMiddleware struct {
	Now     func() time.Time
	MaxSkew time.Duration
}

func (m *DateSanityMiddleware) Name() string { return "date_sanity" }

func (m *DateSanityMiddleware) Process(p *types.Post) (*types.Post, error) {
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	if p.PublishedAt != nil && (p.PublishedAt.IsZero() || p.PublishedAt.After(now.Add(m.MaxSkew))) {
		p.PublishedAt = nil
	}
	if p.FetchedAt.IsZero() {
		p.FetchedAt = now.UTC()
	}
	return p, nil
}

// TruncateMiddleware bounds the length of the summary and body text in runes.
type TruncateMiddleware struct {
	Summary int
	RawHTML int
}

func (m *TruncateMiddleware) Name() string { return "truncate" }

func (m *TruncateMiddleware) Process(p *types.Post) (*types.Post, error) {
	p.Summary = truncate(p.Summary, m.Summary)
	p.RawHTML = truncate(p.RawHTML, m.RawHTML)
	return p, nil
}

// truncate leaves room for the ellipsis parser.Truncate appends.
func truncate(s string, n int) string {
	if n <= 1 || len([]rune(s)) <= n {
		return s
	}
	return parser.Truncate(s, n-1)
}
