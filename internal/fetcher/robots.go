package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// robotsTTL bounds how long a parsed robots.txt is trusted.
const robotsTTL = 12 * time.Hour

// RobotsChecker answers the advisory robots.txt question for listing URLs.
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RobotsManager fetches and caches robots.txt per host. A missing or
// unreachable robots.txt means everything is allowed.
type RobotsManager struct {
	enabled bool
	fetcher Fetcher
	agent   string
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]*robotsData
}

type robotsData struct {
	disallowed []string
	allowed    []string
	crawlDelay time.Duration
	sitemaps   []string
	fetchedAt  time.Time
}

// NewRobotsManager creates a RobotsManager that fetches through f with a
// single attempt per host.
func NewRobotsManager(enabled bool, f Fetcher, logger *slog.Logger) *RobotsManager {
	return &RobotsManager{
		enabled: enabled,
		fetcher: f,
		agent:   "blogscope",
		logger:  logger.With("component", "robots"),
		cache:   make(map[string]*robotsData),
	}
}

// Allowed checks if a URL is allowed by its host's robots.txt.
func (rm *RobotsManager) Allowed(ctx context.Context, rawURL string) bool {
	if rm == nil || !rm.enabled {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	data := rm.robotsFor(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	// Longest match wins; Allow wins ties.
	best, allow := -1, true
	for _, p := range data.allowed {
		if matchRobotsPattern(p, path) && len(p) >= best {
			best, allow = len(p), true
		}
	}
	for _, p := range data.disallowed {
		if matchRobotsPattern(p, path) && len(p) > best {
			best, allow = len(p), false
		}
	}
	return allow
}

// Sitemaps returns the sitemap URLs a host declares, fetching robots.txt if needed.
func (rm *RobotsManager) Sitemaps(ctx context.Context, origin string) []string {
	if rm == nil {
		return nil
	}
	if data := rm.robotsFor(ctx, origin); data != nil {
		return data.sitemaps
	}
	return nil
}

// CrawlDelay returns the crawl-delay for an origin, if one was declared.
func (rm *RobotsManager) CrawlDelay(origin string) time.Duration {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if data := rm.cache[origin]; data != nil {
		return data.crawlDelay
	}
	return 0
}

func (rm *RobotsManager) robotsFor(ctx context.Context, origin string) *robotsData {
	rm.mu.RLock()
	data, ok := rm.cache[origin]
	rm.mu.RUnlock()
	if ok && (data == nil || time.Since(data.fetchedAt) < robotsTTL) {
		return data
	}

	data = rm.fetchRobotsTxt(ctx, origin)
	rm.mu.Lock()
	rm.cache[origin] = data
	rm.mu.Unlock()
	return data
}

func (rm *RobotsManager) fetchRobotsTxt(ctx context.Context, origin string) *robotsData {
	req, err := newSingleAttempt(origin + "/robots.txt")
	if err != nil {
		return nil
	}
	resp, err := rm.fetcher.Fetch(ctx, req)
	if err != nil {
		rm.logger.Debug("robots.txt unavailable, allowing", "origin", origin, "error", err)
		return nil
	}
	return parseRobotsTxt(string(resp.Body), rm.agent)
}

// parseRobotsTxt parses the groups that apply to agent or "*".
func parseRobotsTxt(content, agent string) *robotsData {
	data := &robotsData{fetchedAt: time.Now()}

	inGroup := false
	lastWasAgent := false
	for _, line := range strings.Split(content, "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			ua := strings.ToLower(value)
			match := ua == "*" || strings.Contains(ua, agent)
			if lastWasAgent {
				inGroup = inGroup || match
			} else {
				inGroup = match
			}
			lastWasAgent = true
			continue
		case "disallow":
			if inGroup && value != "" {
				data.disallowed = append(data.disallowed, value)
			}
		case "allow":
			if inGroup && value != "" {
				data.allowed = append(data.allowed, value)
			}
		case "crawl-delay":
			if inGroup {
				var secs float64
				if _, err := fmt.Sscanf(value, "%f", &secs); err == nil {
					data.crawlDelay = time.Duration(secs * float64(time.Second))
				}
			}
		case "sitemap":
			data.sitemaps = append(data.sitemaps, value)
		}
		lastWasAgent = false
	}
	return data
}

// matchRobotsPattern supports * (any sequence) and a trailing $ anchor.
func matchRobotsPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}
	if !strings.Contains(pattern, "*") {
		if anchored {
			return path == pattern
		}
		return strings.HasPrefix(path, pattern)
	}

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	pos := len(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}
	if anchored {
		return pos == len(path) || strings.HasSuffix(pattern, "*")
	}
	return true
}
