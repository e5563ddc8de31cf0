package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRobotsAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\nAllow: /private/blog/\nDisallow: /*.pdf$\nSitemap: https://x/sitemap.xml\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rm := NewRobotsManager(true, testFetcher(t, 1), testLogger)
	ctx := context.Background()
	cases := map[string]bool{
		"/blog/":              true,
		"/private/admin":      false,
		"/private/blog/post":  true,
		"/papers/report.pdf":  false,
		"/papers/report.pdfx": true,
	}
	for path, want := range cases {
		if got := rm.Allowed(ctx, srv.URL+path); got != want {
			t.Errorf("Allowed(%s) = %v, want %v", path, got, want)
		}
	}
	if sm := rm.Sitemaps(ctx, srv.URL); len(sm) != 1 {
		t.Errorf("sitemaps = %v", sm)
	}
}

func TestRobotsMissingMeansAllowed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	rm := NewRobotsManager(true, testFetcher(t, 3), testLogger)
	if !rm.Allowed(context.Background(), srv.URL+"/anything") {
		t.Error("missing robots.txt must allow")
	}
	if !rm.Allowed(context.Background(), "http://127.0.0.1:1/unreachable") {
		t.Error("unreachable robots.txt must allow")
	}
}

func TestRobotsDisabled(t *testing.T) {
	rm := NewRobotsManager(false, nil, testLogger)
	if !rm.Allowed(context.Background(), "https://example.com/private") {
		t.Error("disabled manager must allow")
	}
}

func TestParseRobotsGroups(t *testing.T) {
	data := parseRobotsTxt("User-agent: googlebot\nDisallow: /\n\nUser-agent: blogscope\nUser-agent: other\nDisallow: /drafts\nCrawl-delay: 2\n", "blogscope")
	if len(data.disallowed) != 1 || data.disallowed[0] != "/drafts" {
		t.Errorf("disallowed = %v", data.disallowed)
	}
	if data.crawlDelay.Seconds() != 2 {
		t.Errorf("crawl delay = %v", data.crawlDelay)
	}
}
