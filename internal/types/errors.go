package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout       = errors.New("request timed out")
	ErrMaxRetries    = errors.New("max retries exceeded")
	ErrEmptyResponse = errors.New("empty response body")
	ErrInvalidURL    = errors.New("invalid URL")
	ErrUnknownSource = errors.New("unknown source")
	ErrNoFetcher     = errors.New("no fetcher available for request")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	SourceID   string
	URL        string
	StatusCode int
	Attempts   int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	prefix := "fetch error"
	if e.SourceID != "" {
		prefix = fmt.Sprintf("fetch error [%s]", e.SourceID)
	}
	switch {
	case e.StatusCode > 0 && e.Attempts > 0:
		return fmt.Sprintf("%s for %s (status %d, %d attempts): %v", prefix, e.URL, e.StatusCode, e.Attempts, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s for %s (status %d): %v", prefix, e.URL, e.StatusCode, e.Err)
	case e.Attempts > 0:
		return fmt.Sprintf("%s for %s (%d attempts): %v", prefix, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s for %s: %v", prefix, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// WithSource returns a copy of the error tagged with the source ID.
func (e *FetchError) WithSource(sourceID string) *FetchError {
	c := *e
	c.SourceID = sourceID
	return &c
}

// ParseError wraps errors that occur during parsing. They are logged and
// recovered where they happen, never returned from an extraction.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NoFetchStrategyError is returned for a source that has no custom adapter,
// no feed and no scrapeable listing URL.
type NoFetchStrategyError struct {
	SourceID string
}

func (e *NoFetchStrategyError) Error() string {
	return fmt.Sprintf("no fetch strategy for source %q: no adapter, rss feed, or scrapeable listing url", e.SourceID)
}

// RobotsDisallowedError reports a listing URL disallowed by robots.txt.
type RobotsDisallowedError struct {
	SourceID string
	URL      string
}

func (e *RobotsDisallowedError) Error() string {
	return fmt.Sprintf("robots.txt disallows %s for source %q", e.URL, e.SourceID)
}

// StorageError wraps errors that occur in a cache backend.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("storage error (%s) %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the post-processing pipeline.
type PipelineError struct {
	Stage string
	Post  *Post
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
