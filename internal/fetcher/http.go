package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/blogscope/internal/config"
	"github.com/IshaanNene/blogscope/internal/observability"
	"github.com/IshaanNene/blogscope/internal/types"
)

// HTTPFetcher implements Fetcher using net/http with retries and backoff.
type HTTPFetcher struct {
	client     *http.Client
	fallback   *http.Client
	cfg        *config.FetcherConfig
	metrics    *observability.Metrics
	logger     *slog.Logger
	userAgents []string
	uaIndex    atomic.Int64
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.FetcherConfig, metrics *observability.Metrics, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if metrics == nil {
		metrics = observability.NewMetrics(logger)
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if len(via) >= cfg.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", cfg.MaxRedirects)
		}
		return nil
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport:     newTransport(cfg, &tls.Config{MinVersion: tls.VersionTLS12}),
			Jar:           jar,
			Timeout:       cfg.RequestTimeout,
			CheckRedirect: redirectPolicy,
		},
		// Some hosts fail the handshake with modern defaults; the fallback
		// client pins TLS 1.2 and keeps its own connection pool.
		fallback: &http.Client{
			Transport: newTransport(cfg, &tls.Config{
				MinVersion: tls.VersionTLS12,
				MaxVersion: tls.VersionTLS12,
			}),
			Jar:           jar,
			Timeout:       cfg.RequestTimeout,
			CheckRedirect: redirectPolicy,
		},
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.With("component", "http_fetcher"),
		userAgents: cfg.UserAgents,
	}, nil
}

func newTransport(cfg *config.FetcherConfig, tlsCfg *tls.Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: max(cfg.MaxIdleConns/10, 2),
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     tlsCfg,
		DisableCompression:  true, // decoded below, including brotli
	}
}

// Fetch issues the request, retrying transient failures with exponential
// backoff. A persistent failure returns a *types.FetchError after exactly
// MaxRetries attempts.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	attempts := f.cfg.MaxRetries
	if req.MaxRetries > 0 {
		attempts = req.MaxRetries
	}
	if attempts < 1 {
		attempts = 1
	}
	f.metrics.FetchesTotal.Add(1)

	var lastErr *types.FetchError
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			f.metrics.FetchRetries.Add(1)
			wait := f.backoff(attempt-1, lastErr)
			f.logger.Debug("retrying fetch", "url", req.URLString(), "attempt", attempt, "wait", wait, "error", lastErr.Err)
			if err := sleepContext(ctx, wait); err != nil {
				return nil, f.fail(req, &types.FetchError{URL: req.URLString(), Err: err}, attempt-1)
			}
		}

		f.metrics.FetchAttempts.Add(1)
		resp, ferr := f.do(ctx, f.client, req, false)
		if ferr == nil {
			resp.Attempts = attempt
			return resp, nil
		}

		if isTLSError(ferr.Err) && f.cfg.TLSFallback {
			f.metrics.TLSFallbacks.Add(1)
			f.logger.Debug("tls failure, retrying with reduced headers", "url", req.URLString(), "error", ferr.Err)
			resp, ferr2 := f.do(ctx, f.fallback, req, true)
			if ferr2 == nil {
				resp.Attempts = attempt
				return resp, nil
			}
			return nil, f.fail(req, ferr2, attempt)
		}

		lastErr = ferr
		if !ferr.Retryable || ctx.Err() != nil {
			return nil, f.fail(req, ferr, attempt)
		}
	}

	lastErr.Err = fmt.Errorf("%w: %w", types.ErrMaxRetries, lastErr.Err)
	return nil, f.fail(req, lastErr, attempts)
}

func (f *HTTPFetcher) fail(req *types.Request, fe *types.FetchError, attempts int) *types.FetchError {
	f.metrics.FetchFailures.Add(1)
	fe.Attempts = attempts
	fe.SourceID = req.SourceID
	f.logger.Debug("fetch failed", "source", req.SourceID, "url", req.URLString(), "attempts", attempts, "error", fe.Err)
	return fe
}

// backoff returns RetryDelay * 2^(retry-1), capped; a 429 Retry-After wins
// when longer, still under the cap.
func (f *HTTPFetcher) backoff(retry int, last *types.FetchError) time.Duration {
	d := f.cfg.RetryDelay << (retry - 1)
	if last != nil && last.RetryAfter > d {
		d = last.RetryAfter
	}
	if f.cfg.MaxRetryDelay > 0 && d > f.cfg.MaxRetryDelay {
		d = f.cfg.MaxRetryDelay
	}
	return d
}

// do performs a single attempt.
func (f *HTTPFetcher) do(ctx context.Context, client *http.Client, req *types.Request, reduced bool) (*types.Response, *types.FetchError) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URLString(), nil)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}
	f.setHeaders(httpReq, req, reduced)

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err, Retryable: isRetryableError(err)}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		fe := &types.FetchError{
			URL:        req.URLString(),
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet))),
			Retryable:  retryableStatus(httpResp.StatusCode),
		}
		if httpResp.StatusCode == http.StatusTooManyRequests {
			fe.RetryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"))
		}
		return nil, fe
	}

	var reader io.Reader = httpResp.Body
	if f.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.cfg.MaxBodySize)
	}
	reader, err = decompressReader(httpResp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: httpResp.StatusCode, Err: err}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: httpResp.StatusCode, Err: err, Retryable: true}
	}
	f.metrics.BytesFetched.Add(int64(len(body)))

	resp := types.NewResponse(req, httpResp, body, duration)
	f.logger.Debug("fetch complete",
		"url", req.URLString(),
		"status", resp.StatusCode,
		"size", len(body),
		"duration", duration,
	)
	return resp, nil
}

// setHeaders applies browser-like headers. The reduced set keeps only the
// User-Agent and Accept, which some TLS-terminating proxies insist on.
func (f *HTTPFetcher) setHeaders(httpReq *http.Request, req *types.Request, reduced bool) {
	httpReq.Header.Set("User-Agent", f.nextUserAgent())
	accept := req.Headers.Get("Accept")
	if accept == "" {
		accept = "text/html,application/xhtml+xml,application/xml;q=0.9,application/rss+xml;q=0.9,*/*;q=0.8"
	}
	httpReq.Header.Set("Accept", accept)
	if reduced {
		return
	}
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Sec-Fetch-Dest", "document")
	httpReq.Header.Set("Sec-Fetch-Mode", "navigate")
	httpReq.Header.Set("Sec-Fetch-Site", "none")
	httpReq.Header.Set("Upgrade-Insecure-Requests", "1")
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Set(key, v)
		}
	}
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	f.fallback.CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return "http"
}

func (f *HTTPFetcher) nextUserAgent() string {
	if len(f.userAgents) == 0 {
		return "Mozilla/5.0 (compatible; blogscope/" + config.Version + ")"
	}
	idx := f.uaIndex.Add(1) % int64(len(f.userAgents))
	return f.userAgents[idx]
}

// decompressReader wraps a reader with the decoder for Content-Encoding.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// retryableStatus: 408, 425, 429 and 5xx are transient; other 4xx are not.
func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

// isRetryableError checks if a network error warrants a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if isTLSError(err) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

// isTLSError reports handshake and certificate failures.
func isTLSError(err error) bool {
	if err == nil {
		return false
	}
	var (
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		certInvalid x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
		certVerify  *tls.CertificateVerificationError
	)
	if errors.As(err, &unknownAuth) || errors.As(err, &hostErr) || errors.As(err, &certInvalid) ||
		errors.As(err, &recordErr) || errors.As(err, &certVerify) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:")
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RandomDelay returns a random delay around the base duration (±25%).
func RandomDelay(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	jitter := float64(base) * 0.25
	return base + time.Duration(rand.Float64()*2*jitter-jitter)
}
