package navigation

import "strings"

// RouteHome is the route identifier for the empty path and for "/".
const RouteHome = "home"

// State is the navigation view shared with every subscriber.
type State struct {
	Path  string
	Query Query
}

// Route maps the path to the identifier used for page selection.
func (s State) Route() string {
	return RouteFor(s.Path)
}

// Href renders the state as a path plus optional query string.
func (s State) Href() string {
	if s.Query.Len() == 0 {
		return s.Path
	}
	return s.Path + "?" + s.Query.Encode()
}

// RouteFor returns RouteHome for the root and the slash-trimmed path otherwise.
func RouteFor(path string) string {
	normalized := NormalizePath(path)
	if normalized == "/" {
		return RouteHome
	}
	return strings.TrimPrefix(normalized, "/")
}

// NormalizePath forces a single leading slash and strips trailing slashes,
// except for the root.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.TrimRight(path, "/")
	path = strings.TrimLeft(path, "/")
	return "/" + path
}

// ParseTarget splits a navigation target into its normalized state.
// Targets without a leading slash are treated as relative to the root and
// fragments are discarded.
func ParseTarget(target string) State {
	target = strings.TrimSpace(target)
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	path, rawQuery, _ := strings.Cut(target, "?")
	return State{
		Path:  NormalizePath(path),
		Query: ParseQuery(rawQuery),
	}
}
