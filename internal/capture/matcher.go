// File: internal/capture/matcher.go
package capture

import (
	"net/http"
	"regexp"
	"strings"
)

// Matcher selects exchanges by method and URL pattern.
//
// URL is either an exact URL, compared with query and fragment removed, or a
// glob in which "**" matches any run of characters and "*" matches within a
// single path segment. An empty Method matches every method except the CORS
// preflight OPTIONS, which only matches when asked for by name.
type Matcher struct {
	Method string
	URL    string

	re *regexp.Regexp
}

// NewMatcher compiles a matcher.
func NewMatcher(method, pattern string) Matcher {
	m := Matcher{Method: strings.ToUpper(method), URL: pattern}
	if strings.Contains(pattern, "*") {
		m.re = globToRegexp(stripQuery(pattern))
	}
	return m
}

// Match reports whether a request with the given method and URL is selected.
func (m Matcher) Match(method, rawURL string) bool {
	method = strings.ToUpper(method)
	switch {
	case m.Method == "" && method == http.MethodOptions:
		return false
	case m.Method != "" && m.Method != method:
		return false
	}

	target := stripQuery(rawURL)
	if m.re == nil && strings.Contains(m.URL, "*") {
		m.re = globToRegexp(stripQuery(m.URL))
	}
	if m.re != nil {
		return m.re.MatchString(target)
	}
	return trimSlash(target) == trimSlash(stripQuery(m.URL))
}

func (m Matcher) String() string {
	method := m.Method
	if method == "" {
		method = "ANY"
	}
	return method + " " + m.URL
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

func trimSlash(u string) string {
	if strings.HasSuffix(u, "/") && !strings.HasSuffix(u, "://") {
		return strings.TrimRight(u, "/")
	}
	return u
}

func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' {
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
			continue
		}
		b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
