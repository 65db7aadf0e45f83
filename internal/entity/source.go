package entity

import (
	"net/url"
	"strings"
)

// Source is the parsed identity of a transfer submission (magnet link or
// URL). The create-transfer response and the transfer listing are not
// guaranteed to share a literal key, so reconciliation happens on this
// parsed identity instead.
type Source struct {
	ID       string
	Name     string
	Trackers []string
}

const jobSrcPrefix = "https://www.premiumize.me/api/job/src"

// ParseSource extracts the canonical identity from a magnet URI or URL.
// Magnet links yield the upper-cased btih hash, job-src links their id
// parameter, anything else the string itself with the last path segment as
// display name.
func ParseSource(raw string) *Source {
	if strings.HasPrefix(raw, "magnet:") {
		return parseMagnet(raw)
	}

	if strings.HasPrefix(raw, jobSrcPrefix) {
		if u, err := url.Parse(raw); err == nil {
			return &Source{ID: u.Query().Get("id")}
		}
	}

	src := &Source{ID: raw}
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		segments := strings.Split(strings.TrimRight(u.Path, "/"), "/")
		src.Name = segments[len(segments)-1]
	}

	return src
}

func parseMagnet(raw string) *Source {
	src := &Source{}

	u, err := url.Parse(raw)
	if err != nil {
		// keep at least the prefix up to the first parameter separator
		if i := strings.IndexByte(raw, '&'); i >= 0 {
			raw = raw[:i]
		}

		src.ID = strings.ToUpper(raw)

		return src
	}

	q := u.Query()

	xt := q.Get("xt")
	if hash, ok := strings.CutPrefix(xt, "urn:btih:"); ok && hash != "" {
		src.ID = strings.ToUpper(hash)
	} else {
		src.ID = strings.ToUpper("magnet:?xt=" + xt)
	}

	src.Name = q.Get("dn")
	src.Trackers = q["tr"]

	return src
}

// Matches reports whether two parsed sources denote the same submission.
func (s *Source) Matches(other *Source) bool {
	if s == nil || other == nil || s.ID == "" || other.ID == "" {
		return false
	}

	return strings.EqualFold(s.ID, other.ID)
}
