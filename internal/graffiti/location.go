package graffiti

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// LocalSource is the source tag of locations held by the local store.
const LocalSource = "local"

// Location names a single object slot. Locations are values; they are
// never mutated after construction.
type Location struct {
	Actor  string `json:"actor"`
	Source string `json:"source,omitempty"`
	Name   string `json:"name"`
}

// String renders the location as <source>/<actor>/<name> with actor and
// name path-escaped, so that ParseLocation(l.String()) == l.
func (l Location) String() string {
	return l.Source + "/" + url.PathEscape(l.Actor) + "/" + url.PathEscape(l.Name)
}

// ParseLocation is the inverse of Location.String.
func ParseLocation(uri string) (Location, error) {
	i := strings.LastIndexByte(uri, '/')
	if i < 0 {
		return Location{}, NewError(KindUsage, "location %q: missing name", uri)
	}
	j := strings.LastIndexByte(uri[:i], '/')
	if j < 0 {
		return Location{}, NewError(KindUsage, "location %q: missing actor", uri)
	}
	name, err := url.PathUnescape(uri[i+1:])
	if err != nil {
		return Location{}, WrapError(KindUsage, err, "location %q: name", uri)
	}
	actor, err := url.PathUnescape(uri[j+1 : i])
	if err != nil {
		return Location{}, WrapError(KindUsage, err, "location %q: actor", uri)
	}
	loc := Location{Source: uri[:j], Actor: actor, Name: name}
	if loc.Source == "" || loc.Actor == "" || loc.Name == "" {
		return Location{}, NewError(KindUsage, "location %q: source, actor and name are required", uri)
	}
	return loc, nil
}

// IsNetworkAddress reports whether s is an absolute http(s) URL with a host.
func IsNetworkAddress(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Host != ""
}

// IsLocal reports whether the location is held by the local store.
func (l Location) IsLocal() bool {
	return !IsNetworkAddress(l.Source)
}

// NormalizeChannels NFC-normalizes channels and drops repeats, keeping the
// first occurrence order. The result is never nil.
func NormalizeChannels(channels []string) []string {
	out := make([]string, 0, len(channels))
	seen := make(map[string]bool, len(channels))
	for _, c := range channels {
		c = norm.NFC.String(c)
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
