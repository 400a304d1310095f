package store

import (
	"fmt"
	"regexp"
	"strings"
)

// TagMatcher matches tag names against a push pattern. Tag names contain
// slashes at varying depth (backup tags nest under the protected name), so
// "*" crosses "/" — the same pattern addresses every tag class.
type TagMatcher struct {
	all    bool
	prefix string
	re     *regexp.Regexp
}

// NewTagMatcher compiles a push pattern. An empty pattern or "*" matches
// every tag. A trailing "/" is a prefix match, so "backup/" addresses all
// backup tags regardless of depth. Otherwise "*" matches any run of
// characters including "/" and "?" matches a single character.
func NewTagMatcher(pattern string) (*TagMatcher, error) {
	if pattern == "" || pattern == "*" {
		return &TagMatcher{all: true}, nil
	}
	if strings.HasSuffix(pattern, "/") {
		return &TagMatcher{prefix: pattern}, nil
	}

	expr := regexp.QuoteMeta(pattern)
	expr = strings.ReplaceAll(expr, `\*`, `.*`)
	expr = strings.ReplaceAll(expr, `\?`, `.`)
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return nil, fmt.Errorf("bad push pattern %q: %w", pattern, err)
	}
	return &TagMatcher{re: re}, nil
}

// Match reports whether name matches the pattern.
func (m *TagMatcher) Match(name string) bool {
	switch {
	case m.all:
		return true
	case m.prefix != "":
		return strings.HasPrefix(name, m.prefix)
	default:
		return m.re.MatchString(name)
	}
}
