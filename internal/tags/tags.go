// Package tags parses @tags(...) annotations found in documentation comments.
package tags

import (
	"sort"
	"strconv"
	"strings"
)

const marker = "@tags("

// Tags maps annotation keys to their values. A bare key maps to "true".
type Tags map[string]string

// Parse extracts the first @tags(...) annotation from a raw comment.
// The annotation runs to the next ')' or, if there is none, to the end of
// the comment. A comment without an annotation yields an empty map.
func Parse(comment string) Tags {
	t := Tags{}
	start := strings.Index(comment, marker)
	if start < 0 {
		return t
	}
	body := comment[start+len(marker):]
	if end := strings.IndexByte(body, ')'); end >= 0 {
		body = body[:end]
	}

	for _, entry := range strings.Split(body, ",") {
		key, value, hasValue := strings.Cut(entry, "=")
		key = trim(key)
		if key == "" {
			continue
		}
		if hasValue {
			t[key] = trim(value)
		} else {
			t[key] = "true"
		}
	}
	return t
}

// trim strips whitespace and the '*' gutter of block comments.
func trim(s string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "*"))
}

// Has reports whether key is present.
func (t Tags) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Get returns the value for key, or def when absent.
func (t Tags) Get(key, def string) string {
	if v, ok := t[key]; ok {
		return v
	}
	return def
}

// Int returns the value for key as an int, or def when absent or not a number.
func (t Tags) Int(key string, def int) int {
	v, ok := t[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Keys returns the keys in sorted order.
func (t Tags) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the tags back in annotation syntax with sorted keys.
func (t Tags) String() string {
	parts := make([]string, 0, len(t))
	for _, k := range t.Keys() {
		if t[k] == "true" {
			parts = append(parts, k)
			continue
		}
		parts = append(parts, k+"="+t[k])
	}
	return strings.Join(parts, ",")
}
