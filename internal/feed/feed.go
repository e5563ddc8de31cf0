// Package feed turns RSS and Atom documents into posts.
package feed

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/IshaanNene/blogscope/internal/parser"
	"github.com/IshaanNene/blogscope/internal/types"
)

// MaxItems caps the posts taken from a single feed document.
const MaxItems = 70

// Parse parses an RSS or Atom document. Items without a link or title are
// skipped; at most MaxItems posts are returned, in feed order.
func Parse(data []byte, sourceID string, base *url.URL) ([]types.Post, error) {
	f, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &types.ParseError{URL: baseString(base), Selector: "feed", Err: fmt.Errorf("parse feed: %w", err)}
	}
	if base == nil && f.Link != "" {
		base, _ = url.Parse(f.Link)
	}

	posts := make([]types.Post, 0, min(len(f.Items), MaxItems))
	for _, item := range f.Items {
		if len(posts) == MaxItems {
			break
		}
		if p, ok := itemToPost(item, sourceID, base); ok {
			posts = append(posts, p)
		}
	}
	return types.DedupPosts(posts), nil
}

func itemToPost(item *gofeed.Item, sourceID string, base *url.URL) (types.Post, bool) {
	if item == nil {
		return types.Post{}, false
	}
	title := parser.CleanText(parser.StripTags(item.Title))
	link := types.ResolveURL(base, item.Link)
	if link == "" && len(item.Links) > 0 {
		link = types.ResolveURL(base, item.Links[0])
	}
	if title == "" || link == "" {
		return types.Post{}, false
	}

	p := types.NewPost(sourceID, title, link)
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		p.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		p.PublishedAt = &t
	default:
		p.PublishedAt = parser.ParseDate(item.Published)
	}
	p.Author = itemAuthor(item)

	desc := item.Description
	if desc == "" {
		desc = item.Content
	}
	p.Summary = parser.Truncate(parser.StripTags(desc), 500)
	if item.Content != "" {
		p.RawHTML = parser.Truncate(parser.StripTags(item.Content), types.MaxRawHTMLChars)
	}
	p.ImageURL = itemImage(item, base)
	if len(item.Categories) > 0 {
		p.SubCategory = strings.TrimSpace(item.Categories[0])
	}
	return p, true
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return strings.TrimSpace(item.Author.Name)
	}
	var names []string
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			names = append(names, strings.TrimSpace(a.Name))
		}
	}
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return strings.TrimSpace(item.DublinCoreExt.Creator[0])
	}
	return ""
}

// itemImage resolves the thumbnail in priority order: media:thumbnail,
// media:content of image type, an image enclosure, then the first <img> in
// the item's HTML.
func itemImage(item *gofeed.Item, base *url.URL) string {
	media := item.Extensions["media"]
	if u := mediaThumbnail(media); u != "" {
		return types.ResolveURL(base, u)
	}
	if u := mediaImageContent(media); u != "" {
		return types.ResolveURL(base, u)
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(strings.ToLower(enc.Type), "image/") && enc.URL != "" {
			return types.ResolveURL(base, enc.URL)
		}
	}
	for _, html := range []string{item.Content, item.Description} {
		if u := parser.FirstImage(html, base); u != "" {
			return u
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return types.ResolveURL(base, item.Image.URL)
	}
	return ""
}

func mediaThumbnail(media map[string][]ext.Extension) string {
	for _, th := range media["thumbnail"] {
		if u := th.Attrs["url"]; u != "" {
			return u
		}
	}
	for _, g := range media["group"] {
		for _, th := range g.Children["thumbnail"] {
			if u := th.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	return ""
}

func mediaImageContent(media map[string][]ext.Extension) string {
	var contents []ext.Extension
	contents = append(contents, media["content"]...)
	for _, g := range media["group"] {
		contents = append(contents, g.Children["content"]...)
	}
	for _, c := range contents {
		u := c.Attrs["url"]
		if u == "" {
			continue
		}
		if c.Attrs["medium"] == "image" || strings.HasPrefix(strings.ToLower(c.Attrs["type"]), "image/") {
			return u
		}
	}
	return ""
}

func baseString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
