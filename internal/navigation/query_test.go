package navigation

import "testing"

func TestParseQueryKeepsOrderAndRepeats(t *testing.T) {
	q := ParseQuery("?b=2&a=1&b=3&flag&name=Jane%20Doe&bad=%zz")

	if got := q.Keys(); len(got) != 5 || got[0] != "b" || got[1] != "a" || got[2] != "flag" {
		t.Fatalf("Keys() = %v", got)
	}
	if got := q.Get("b"); got != "2" {
		t.Fatalf("Get(b) = %q, want first value", got)
	}
	if got := q.Values("b"); len(got) != 2 || got[1] != "3" {
		t.Fatalf("Values(b) = %v", got)
	}
	if !q.Has("flag") || q.Get("flag") != "" {
		t.Fatalf("flag without value not preserved")
	}
	if got := q.Get("name"); got != "Jane Doe" {
		t.Fatalf("Get(name) = %q", got)
	}
	if got := q.Get("bad"); got != "%zz" {
		t.Fatalf("malformed escape = %q, want verbatim", got)
	}
	if q.Len() != 6 {
		t.Fatalf("Len() = %d", q.Len())
	}
	if q.Has("missing") || q.Get("missing") != "" || q.Values("missing") != nil {
		t.Fatalf("missing key reported present")
	}
}

func TestParseQuerySemicolonStaysInValue(t *testing.T) {
	tests := []struct {
		raw  string
		key  string
		want string
		len  int
	}{
		{raw: "q=a;b&template=x", key: "q", want: "a;b", len: 2},
		{raw: "q=a%3Bb", key: "q", want: "a;b", len: 1},
		{raw: "a;b=1", key: "a;b", want: "1", len: 1},
		{raw: "&&q=x&", key: "q", want: "x", len: 1},
	}
	for _, tt := range tests {
		q := ParseQuery(tt.raw)
		if got := q.Get(tt.key); got != tt.want {
			t.Errorf("ParseQuery(%q).Get(%q) = %q, want %q", tt.raw, tt.key, got, tt.want)
		}
		if q.Len() != tt.len {
			t.Errorf("ParseQuery(%q).Len() = %d, want %d", tt.raw, q.Len(), tt.len)
		}
	}
}

func TestQueryEncodeRoundTrip(t *testing.T) {
	q := ParseQuery("template=modern&step=2&tag=a&tag=b")
	again := ParseQuery(q.Encode())
	if !q.Equal(again) {
		t.Fatalf("round trip changed query: %q vs %q", q.Encode(), again.Encode())
	}
	if ParseQuery("").Encode() != "" {
		t.Fatal("empty query should encode to empty string")
	}
}

func TestRouteFor(t *testing.T) {
	tests := map[string]string{
		"":          RouteHome,
		"/":         RouteHome,
		"///":       RouteHome,
		"/builder/": "builder",
		"preview":   "preview",
	}
	for path, want := range tests {
		if got := RouteFor(path); got != want {
			t.Errorf("RouteFor(%q) = %q, want %q", path, got, want)
		}
	}
}
