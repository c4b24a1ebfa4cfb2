package rename

import (
	"fmt"

	"github.com/bmatcuk/doublestar"
)

// Filter selects source files by slash-separated glob patterns. "**" matches
// any number of directories.
type Filter struct {
	Include []string
}

// NewFilter validates the patterns. An empty list yields a filter that
// matches nothing until DefaultFilter or Or fills it.
func NewFilter(include []string) (Filter, error) {
	for _, pattern := range include {
		if _, err := doublestar.Match(pattern, "x"); err != nil {
			return Filter{}, fmt.Errorf("rename: bad include pattern %q: %w", pattern, err)
		}
	}
	return Filter{Include: append([]string(nil), include...)}, nil
}

// DefaultFilter selects everything under the old prefix directory of each
// rule.
func DefaultFilter(rules Rules) Filter {
	include := make([]string, len(rules))
	for i, r := range rules {
		include[i] = r.OldPath() + "/**"
	}
	return Filter{Include: include}
}

// Empty reports whether the filter has no patterns.
func (f Filter) Empty() bool {
	return len(f.Include) == 0
}

// Match reports whether rel matches any include pattern.
func (f Filter) Match(rel string) (bool, error) {
	for _, pattern := range f.Include {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("rename: include pattern %q: %w", pattern, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
