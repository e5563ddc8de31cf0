package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Request is one upstream GET issued on behalf of a source.
type Request struct {
	URL     *url.URL
	Method  string
	Headers http.Header

	// SourceID tags errors and logs with the originating source.
	SourceID string

	// MaxRetries overrides the fetcher's attempt budget when > 0.
	MaxRetries int

	// Timeout overrides the per-attempt timeout when > 0.
	Timeout time.Duration

	// FetcherType is "http" or "browser".
	FetcherType string

	// Tag categorizes this request ("listing", "detail", "feed", "api", "sitemap").
	Tag string

	ID        string
	CreatedAt time.Time
}

// NewRequest creates a GET request with defaults.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidURL, rawURL)
	}
	return &Request{
		URL:         u,
		Method:      http.MethodGet,
		Headers:     make(http.Header),
		FetcherType: "http",
		CreatedAt:   time.Now(),
		ID:          uuid.NewString(),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}
