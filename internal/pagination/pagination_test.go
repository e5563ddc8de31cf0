package pagination

import (
	"sync"
	"testing"
)

func TestDetectNextPage(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"rel next link", `<html><head><link rel="next" href="/blog?page=2"></head></html>`, "https://ex.com/blog?page=2"},
		{"rel next anchor", `<a rel="nofollow next" href="/blog/page/2/">more</a>`, "https://ex.com/blog/page/2/"},
		{"numeric anchor", `<div class="pager"><a href="/blog">1</a><a href="/blog/p/2">2</a><a href="/blog/p/3">3</a></div>`, "https://ex.com/blog/p/2"},
		{"next text", `<a href="/blog/older-stuff">Next</a>`, "https://ex.com/blog/older-stuff"},
		{"query p", `<a href="/blog?p=2&sort=new">Page two</a>`, "https://ex.com/blog?p=2&sort=new"},
		{"offsite ignored", `<a href="https://other.com/blog?page=2">2</a>`, ""},
		{"pseudo ignored", `<a href="javascript:next()">Next</a>`, ""},
		{"nothing", `<a href="/about">About</a>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectNextPage([]byte(tt.html), "https://ex.com/blog")
			if got != tt.want || ok != (tt.want != "") {
				t.Errorf("DetectNextPage = %q, %v; want %q", got, ok, tt.want)
			}
		})
	}
}

func TestBuildPageURL(t *testing.T) {
	tests := []struct {
		list, pattern string
		page          int
		want          string
	}{
		{"https://ex.com/blog", "https://ex.com/blog?page=2", 5, "https://ex.com/blog?page=5"},
		{"https://ex.com/blog", "https://ex.com/blog?tag=go&page=2", 3, "https://ex.com/blog?tag=go&page=3"},
		{"https://ex.com/blog", "https://ex.com/blog?p=2&sort=new", 4, "https://ex.com/blog?p=4&sort=new"},
		{"https://ex.com/blog", "https://ex.com/blog/page/2/", 7, "https://ex.com/blog/page/7/"},
		{"https://ex.com/blog", "https://ex.com/blog/p/2", 3, "https://ex.com/blog/p/3"},
		{"https://ex.com/blog", "https://ex.com/blog?page=2&p=2", 3, "https://ex.com/blog?page=3&p=2"},
		{"https://ex.com/blog", "", 2, "https://ex.com/blog?page=2&"},
		{"https://ex.com/blog?lang=en", "", 2, "https://ex.com/blog?lang=en&page=2&"},
		{"https://ex.com/blog", "https://ex.com/blog/older-stuff", 2, "https://ex.com/blog?page=2&"},
		{"https://ex.com/blog", "https://ex.com/blog?page=2", 1, "https://ex.com/blog"},
	}
	for _, tt := range tests {
		if got := BuildPageURL(tt.list, tt.pattern, tt.page); got != tt.want {
			t.Errorf("BuildPageURL(%q, %q, %d) = %q, want %q", tt.list, tt.pattern, tt.page, got, tt.want)
		}
	}
}

func TestConventionOf(t *testing.T) {
	if ConventionOf("https://x/blog?page=2") != ConventionQueryPage {
		t.Error("query page")
	}
	if ConventionOf("https://x/page/2/?p=2") != ConventionQueryP {
		t.Error("query p outranks path segment")
	}
	if ConventionOf("https://x/blog") != ConventionNone {
		t.Error("none")
	}
}

func TestMemo(t *testing.T) {
	m := NewMemo()
	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			m.Record("src", "", p)
		}(i)
	}
	wg.Wait()
	m.Record("src", "https://x/blog?page=2", 1)
	m.Record("src", "", 2)

	st, ok := m.Get("src")
	if !ok || st.CurrentPatternURL != "https://x/blog?page=2" || st.PagesFetched != 10 {
		t.Errorf("state = %+v", st)
	}
	m.Forget("src")
	if _, ok := m.Get("src"); ok {
		t.Error("Forget did not drop state")
	}
}
