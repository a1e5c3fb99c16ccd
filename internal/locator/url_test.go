package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLMatchIgnoresSchemeWwwTrailingSlashAndFragment(t *testing.T) {
	assert.True(t, URLMatch("https://www.a.com/p/", "http://a.com/p"))
	assert.True(t, URLMatch("https://a.com/p#x", "https://a.com/p"))
	assert.True(t, URLMatch("http://a.com", "https://www.a.com/"))
}

func TestURLMatchKeepsQuerySignificant(t *testing.T) {
	assert.True(t, URLMatch("https://a.com/p?q=1", "http://www.a.com/p?q=1"))
	assert.False(t, URLMatch("https://a.com/p?q=1", "https://a.com/p?q=2"))
	assert.False(t, URLMatch("https://a.com/p?q=1", "https://a.com/p"))
}

func TestURLMatchDistinguishesHostsAndPaths(t *testing.T) {
	assert.False(t, URLMatch("https://a.com/p", "https://b.com/p"))
	assert.False(t, URLMatch("https://a.com/p", "https://a.com/q"))
}

func TestNormalizeURLIsIdempotent(t *testing.T) {
	for _, raw := range []string{
		"https://www.a.com/path/",
		"http://a.com/path?x=1#frag",
		"not a url at all",
		"",
	} {
		once := NormalizeURL(raw)
		assert.Equal(t, once, NormalizeURL(once), "normalization of %q must be idempotent", raw)
	}
}

func TestURLMatchUnparseableFallsBackToRawComparison(t *testing.T) {
	assert.True(t, URLMatch("::not-a-url::", "::not-a-url::"))
	assert.False(t, URLMatch("::not-a-url::", "::другой::"))
}
