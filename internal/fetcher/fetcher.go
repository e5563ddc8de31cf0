package fetcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IshaanNene/blogscope/internal/types"
)

// Fetcher is the interface for all fetch primitive implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// Get fetches rawURL on behalf of sourceID.
func Get(ctx context.Context, f Fetcher, sourceID, rawURL, tag string) (*types.Response, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, &types.FetchError{SourceID: sourceID, URL: rawURL, Err: err}
	}
	req.SourceID = sourceID
	req.Tag = tag
	return f.Fetch(ctx, req)
}

// FetchText fetches rawURL and returns the decoded body.
func FetchText(ctx context.Context, f Fetcher, sourceID, rawURL string) (string, error) {
	resp, err := Get(ctx, f, sourceID, rawURL, "listing")
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// FetchJSON fetches rawURL and decodes the JSON body into v.
func FetchJSON(ctx context.Context, f Fetcher, sourceID, rawURL string, v any) error {
	_, err := GetJSON(ctx, f, sourceID, rawURL, v)
	return err
}

// GetJSON is FetchJSON that also returns the response, for callers that
// read paging headers.
func GetJSON(ctx context.Context, f Fetcher, sourceID, rawURL string, v any) (*types.Response, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, &types.FetchError{SourceID: sourceID, URL: rawURL, Err: err}
	}
	req.SourceID = sourceID
	req.Tag = "api"
	req.Headers.Set("Accept", "application/json, text/plain, */*")
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return resp, &types.ParseError{URL: rawURL, Err: fmt.Errorf("decode json: %w", err)}
	}
	return resp, nil
}

// Router sends requests to the browser fetcher when they ask for rendering
// and one is configured, and to the HTTP fetcher otherwise.
type Router struct {
	HTTP    Fetcher
	Browser Fetcher
}

// Fetch dispatches on req.FetcherType.
func (r *Router) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if req.FetcherType == "browser" && r.Browser != nil {
		return r.Browser.Fetch(ctx, req)
	}
	if r.HTTP == nil {
		return nil, &types.FetchError{SourceID: req.SourceID, URL: req.URLString(), Err: types.ErrNoFetcher}
	}
	return r.HTTP.Fetch(ctx, req)
}

// Close closes both fetchers.
func (r *Router) Close() error {
	var first error
	for _, f := range []Fetcher{r.HTTP, r.Browser} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Type returns the fetcher type identifier.
func (r *Router) Type() string { return "router" }

// Rendering wraps a fetcher so every request asks for browser rendering.
type Rendering struct{ Fetcher }

// Fetch marks the request for the browser and forwards it.
func (r Rendering) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	req.FetcherType = "browser"
	return r.Fetcher.Fetch(ctx, req)
}

func newSingleAttempt(rawURL string) (*types.Request, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.MaxRetries = 1
	req.Tag = "robots"
	req.Headers.Set("Accept", "text/plain,*/*;q=0.8")
	return req, nil
}
