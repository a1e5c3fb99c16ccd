package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTarget(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello  World", "hello world"},
		{"  padded  ", "padded"},
		{"nbsp here", "nbsp here"},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"", ""},
		{" \t\n ", ""},
		{"МФТИ — Физтех", "мфти — физтех"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, string(normalizeTarget(c.in)), "input %q", c.in)
	}
}

func TestIndexOfFold(t *testing.T) {
	text := []rune("The Quick Brown Fox")

	assert.Equal(t, 4, indexOfFold(text, []rune("quick")))
	assert.Equal(t, 0, indexOfFold(text, []rune("the")))
	assert.Equal(t, -1, indexOfFold(text, []rune("lazy")))
	assert.Equal(t, -1, indexOfFold(text, []rune("")))
	assert.Equal(t, -1, indexOfFold([]rune("ab"), []rune("abc")))
}
