package entity

import (
	"fmt"
	"regexp"
	"strings"
)

var hexHashRe = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Filter selects files by name regex or content hash. Criteria that look
// like 40-hex-character torrent hashes are matched against the hash field
// and kept out of the regex alternation.
type Filter struct {
	re     *regexp.Regexp
	hashes map[string]struct{}
}

// NewFilter compiles the given criteria. Patterns are matched
// case-insensitively, OR-ed together.
func NewFilter(criteria []string) (*Filter, error) {
	f := &Filter{hashes: make(map[string]struct{})}

	var patterns []string

	for _, c := range criteria {
		if hexHashRe.MatchString(c) {
			f.hashes[strings.ToLower(c)] = struct{}{}

			continue
		}

		patterns = append(patterns, c)
	}

	if len(patterns) > 0 {
		re, err := regexp.Compile(`(?i)` + strings.Join(patterns, "|"))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}

		f.re = re
	}

	return f, nil
}

// Matches reports whether an item with the given name and hash is selected.
func (f *Filter) Matches(name, hash string) bool {
	if f.re != nil && f.re.MatchString(name) {
		return true
	}

	if hash == "" {
		return false
	}

	_, ok := f.hashes[strings.ToLower(hash)]

	return ok
}

// Empty reports whether the filter has no criteria at all, in which case
// nothing matches.
func (f *Filter) Empty() bool {
	return f.re == nil && len(f.hashes) == 0
}
