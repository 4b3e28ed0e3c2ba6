package navigation

import (
	"net/url"
	"strings"
)

// Param is one key/value pair of a query string.
type Param struct {
	Key   string
	Value string
}

// Query is an ordered multi-map parsed from the query component of an address.
// Keys keep their first-appearance order and repeated keys keep every value.
type Query struct {
	params []Param
}

// ParseQuery parses a raw query string (with or without the leading '?').
// Pairs are separated by '&' only; a ';' is part of the value.
// Malformed escapes are kept verbatim instead of dropping the pair.
func ParseQuery(raw string) Query {
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return Query{}
	}
	parts := strings.Split(raw, "&")
	params := make([]Param, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		if key == "" {
			continue
		}
		params = append(params, Param{Key: unescape(key), Value: unescape(value)})
	}
	return Query{params: params}
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// Get returns the first value for key, or "" when absent.
func (q Query) Get(key string) string {
	for _, p := range q.params {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Values returns every value for key in order.
func (q Query) Values(key string) []string {
	var values []string
	for _, p := range q.params {
		if p.Key == key {
			values = append(values, p.Value)
		}
	}
	return values
}

func (q Query) Has(key string) bool {
	for _, p := range q.params {
		if p.Key == key {
			return true
		}
	}
	return false
}

// Keys returns the distinct keys in first-appearance order.
func (q Query) Keys() []string {
	seen := make(map[string]struct{}, len(q.params))
	keys := make([]string, 0, len(q.params))
	for _, p := range q.params {
		if _, ok := seen[p.Key]; ok {
			continue
		}
		seen[p.Key] = struct{}{}
		keys = append(keys, p.Key)
	}
	return keys
}

// Len is the number of pairs, counting repeated keys.
func (q Query) Len() int {
	return len(q.params)
}

func (q Query) Params() []Param {
	out := make([]Param, len(q.params))
	copy(out, q.params)
	return out
}

// Encode renders the pairs back into a query string without the leading '?'.
func (q Query) Encode() string {
	if len(q.params) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range q.params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

func (q Query) Clone() Query {
	return Query{params: q.Params()}
}

// Equal reports whether both queries hold the same pairs in the same order.
func (q Query) Equal(other Query) bool {
	if len(q.params) != len(other.params) {
		return false
	}
	for i := range q.params {
		if q.params[i] != other.params[i] {
			return false
		}
	}
	return true
}
