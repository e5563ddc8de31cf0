package feed

import (
	"fmt"
	"net/url"
	"strings"
	"testing"
)

func TestParseMinimalRSS(t *testing.T) {
	data := `<rss><channel><item><title>Test Post 1</title><link>https://example.com/post1</link><pubDate>Mon, 01 Jan 2024 00:00:00 GMT</pubDate></item></channel></rss>`
	posts, err := Parse([]byte(data), "example", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("got %d posts, want 1", len(posts))
	}
	p := posts[0]
	if p.Title != "Test Post 1" || p.URL != "https://example.com/post1" {
		t.Errorf("post = %+v", p)
	}
	if p.PublishedAt == nil || p.PublishedAt.Year() != 2024 {
		t.Errorf("date = %v", p.PublishedAt)
	}
	if p.ID != "example-post1" {
		t.Errorf("id = %q", p.ID)
	}
	if p.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

func TestParseAtom(t *testing.T) {
	data := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Eng</title>
  <entry>
    <title>Atom Entry Title</title>
    <link rel="alternate" href="https://eng.example.com/2024/02/atom-entry"/>
    <updated>2024-02-03T04:05:06Z</updated>
    <author><name>Ken Thompson</name></author>
    <summary>Short summary</summary>
  </entry>
</feed>`
	posts, err := Parse([]byte(data), "eng", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(posts) != 1 || posts[0].Author != "Ken Thompson" || posts[0].Summary != "Short summary" {
		t.Fatalf("posts = %+v", posts)
	}
}

func TestParseSkipsItemsMissingLinkOrTitle(t *testing.T) {
	data := `<rss><channel>
<item><title>No Link</title></item>
<item><link>https://example.com/no-title</link></item>
<item><title>Good One</title><link>https://example.com/good</link></item>
</channel></rss>`
	posts, err := Parse([]byte(data), "x", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(posts) != 1 || posts[0].Title != "Good One" {
		t.Errorf("posts = %+v", posts)
	}
}

func TestParseCapsItems(t *testing.T) {
	var b strings.Builder
	b.WriteString("<rss><channel>")
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, "<item><title>Post number %d</title><link>https://example.com/p/%d</link></item>", i, i)
	}
	b.WriteString("</channel></rss>")
	posts, err := Parse([]byte(b.String()), "x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != MaxItems {
		t.Errorf("got %d posts, want %d", len(posts), MaxItems)
	}
}

func TestImagePriority(t *testing.T) {
	data := `<rss xmlns:media="http://search.yahoo.com/mrss/"><channel>
<item><title>Thumb wins</title><link>https://x.com/a</link>
  <media:content url="https://x.com/content.jpg" medium="image"/>
  <media:thumbnail url="https://x.com/thumb.jpg"/>
  <enclosure url="https://x.com/enc.jpg" type="image/jpeg" length="1"/>
</item>
<item><title>Content wins</title><link>https://x.com/b</link>
  <media:content url="https://x.com/video.mp4" type="video/mp4"/>
  <media:content url="https://x.com/content.jpg" type="image/jpeg"/>
  <enclosure url="https://x.com/enc.jpg" type="image/jpeg" length="1"/>
</item>
<item><title>Enclosure wins</title><link>https://x.com/c</link>
  <enclosure url="https://x.com/audio.mp3" type="audio/mpeg" length="1"/>
  <enclosure url="https://x.com/enc.jpg" type="image/jpeg" length="1"/>
  <description><![CDATA[<p><img src="https://x.com/inline.jpg"></p>]]></description>
</item>
<item><title>Inline wins</title><link>https://x.com/d</link>
  <description><![CDATA[<p>Hello <img src="/inline.jpg"></p>]]></description>
</item>
</channel></rss>`
	base, _ := url.Parse("https://x.com/feed")
	posts, err := Parse([]byte(data), "x", base)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"https://x.com/thumb.jpg",
		"https://x.com/content.jpg",
		"https://x.com/enc.jpg",
		"https://x.com/inline.jpg",
	}
	if len(posts) != len(want) {
		t.Fatalf("got %d posts", len(posts))
	}
	for i, w := range want {
		if posts[i].ImageURL != w {
			t.Errorf("%s: image = %q, want %q", posts[i].Title, posts[i].ImageURL, w)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse([]byte("this is not a feed"), "x", nil); err == nil {
		t.Error("expected parse error")
	}
}
