// Package sanitize strips unsafe HTML from user-submitted message bodies.
// Content is sanitized on the send and edit paths and stored clean, so
// read paths never re-sanitize.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer applies a fixed allow-list of inline formatting tags and
// strips everything else, including script-capable constructs and event
// handler attributes. Sanitize is idempotent.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New builds the message-content policy: bold, italic, links, lists and
// inline code survive; nothing else does.
func New() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "ul", "ol", "li", "code")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireNoFollowOnLinks(true)
	return &Sanitizer{policy: p}
}

// Sanitize returns content with disallowed markup removed and surrounding
// whitespace trimmed.
func (s *Sanitizer) Sanitize(content string) string {
	return strings.TrimSpace(s.policy.Sanitize(content))
}
