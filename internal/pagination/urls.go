package pagination

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	queryPage = regexp.MustCompile(`(^|&)(page|paged)=\d*`)
	queryP    = regexp.MustCompile(`(^|&)p=\d*`)
	pathPage  = regexp.MustCompile(`/page/\d+`)
	pathP     = regexp.MustCompile(`/p/\d+`)
)

// Convention names the page-number scheme of a detected pattern.
type Convention string

const (
	ConventionNone      Convention = ""
	ConventionQueryPage Convention = "query:page"
	ConventionQueryP    Convention = "query:p"
	ConventionPathPage  Convention = "path:page"
	ConventionPathP     Convention = "path:p"
)

// ConventionOf classifies a pattern URL, in substitution priority order.
func ConventionOf(pattern string) Convention {
	path, query, _ := strings.Cut(pattern, "?")
	query, _, _ = strings.Cut(query, "#")
	switch {
	case queryPage.MatchString(query):
		return ConventionQueryPage
	case queryP.MatchString(query):
		return ConventionQueryP
	case pathPage.MatchString(path):
		return ConventionPathPage
	case pathP.MatchString(path):
		return ConventionPathP
	}
	return ConventionNone
}

// BuildPageURL returns the URL of page n. With a detected pattern the page
// number is substituted into its convention; without one, "?page=N&" is
// appended to the listing URL. Page 1 is always the listing URL.
func BuildPageURL(listURL, pattern string, n int) string {
	if n <= 1 {
		return listURL
	}
	num := strconv.Itoa(n)

	if pattern != "" {
		path, rest, hasQuery := strings.Cut(pattern, "?")
		query, frag, _ := strings.Cut(rest, "#")
		switch ConventionOf(pattern) {
		case ConventionQueryPage:
			return join(path, queryPage.ReplaceAllString(query, "${1}${2}="+num), hasQuery, frag)
		case ConventionQueryP:
			return join(path, queryP.ReplaceAllString(query, "${1}p="+num), hasQuery, frag)
		case ConventionPathPage:
			return join(replaceLast(pathPage, path, "/page/"+num), query, hasQuery, frag)
		case ConventionPathP:
			return join(replaceLast(pathP, path, "/p/"+num), query, hasQuery, frag)
		}
	}

	sep := "?"
	if strings.Contains(listURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%s&", listURL, sep, num)
}

func join(path, query string, hasQuery bool, frag string) string {
	out := path
	if hasQuery && query != "" {
		out += "?" + query
	}
	if frag != "" {
		out += "#" + frag
	}
	return out
}

func replaceLast(re *regexp.Regexp, s, repl string) string {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	last := locs[len(locs)-1]
	return s[:last[0]] + repl + s[last[1]:]
}
