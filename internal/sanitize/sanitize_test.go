package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStripsScripts(t *testing.T) {
	s := New()

	cases := map[string]string{
		`hello <script>alert("x")</script>world`:       "hello world",
		`<img src=x onerror=alert(1)>caption`:          "caption",
		`<a href="javascript:alert(1)">click</a>`:      "click",
		`<div onclick="steal()">text</div>`:            "text",
		`<iframe src="https://evil.example"></iframe>`: "",
	}

	for input, want := range cases {
		assert.Equal(t, want, s.Sanitize(input), "input: %s", input)
	}
}

func TestSanitizeKeepsAllowedFormatting(t *testing.T) {
	s := New()

	assert.Equal(t, "<b>bold</b> and <em>italic</em>", s.Sanitize("<b>bold</b> and <em>italic</em>"))
	assert.Equal(t, "<ul><li>one</li><li>two</li></ul>", s.Sanitize("<ul><li>one</li><li>two</li></ul>"))
	assert.Equal(t, "<code>x := 1</code>", s.Sanitize("<code>x := 1</code>"))
}

func TestSanitizeKeepsSafeLinks(t *testing.T) {
	s := New()

	out := s.Sanitize(`<a href="https://example.com">site</a>`)
	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, ">site</a>")
}

func TestSanitizeIdempotent(t *testing.T) {
	s := New()

	inputs := []string{
		"plain text",
		`<b>bold</b> <script>alert(1)</script>`,
		`<a href="https://example.com">link</a> &amp; more`,
		`nested <i><b>tags</b></i> <img src=x onerror=hack()>`,
		"  padded   ",
	}

	for _, input := range inputs {
		once := s.Sanitize(input)
		twice := s.Sanitize(once)
		assert.Equal(t, once, twice, "input: %s", input)
	}
}

func TestSanitizeTrimsWhitespace(t *testing.T) {
	s := New()

	assert.Equal(t, "hello", s.Sanitize("   hello \n"))
	assert.Equal(t, "", s.Sanitize("   \t\n"))
}
