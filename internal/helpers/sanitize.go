package helpers

import (
	"html"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy

	whitespaceRun = regexp.MustCompile(`\s+`)
	markdownMarks = regexp.MustCompile("[*_`#>]+")
	bracketTags   = regexp.MustCompile(`\[[A-Z_]+[^\]]*\]`)
)

// StrictHTMLPolicy returns a shared bluemonday policy that strips every HTML
// element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// PlainText converts an HTML fragment (feed summaries, scraped pages) into a
// single line of readable text. Entities are decoded after sanitising so
// "&amp;" reads as "&".
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	out := StrictHTMLPolicy().Sanitize(s)
	out = html.UnescapeString(out)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(out, " "))
}

// Truncate cuts s to at most n runes, never splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Preview returns the first n runes of s followed by "..." when s was longer.
func Preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return Truncate(s, n) + "..."
}

// SpeakableText prepares script text for a speech engine: markup, markdown
// emphasis and leftover control tags are removed.
func SpeakableText(s string) string {
	out := PlainText(s)
	out = bracketTags.ReplaceAllString(out, "")
	out = markdownMarks.ReplaceAllString(out, "")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(out, " "))
}
