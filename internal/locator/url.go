// File: internal/locator/url.go
package locator

import (
	"net/url"
	"strings"
)

// NormalizeURL reduces a URL to host+path+query for comparison: scheme,
// fragment, a leading "www." and a trailing slash on the path are ignored.
// The operation is idempotent. An unparseable input is returned as-is so two
// equal raw strings still match each other.
func NormalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	path := u.Host + u.Path
	path = strings.TrimSuffix(path, "/")
	path = strings.TrimPrefix(path, "www.")
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// URLMatch reports whether two URLs refer to the same page under
// normalization.
func URLMatch(a, b string) bool {
	return NormalizeURL(a) == NormalizeURL(b)
}
