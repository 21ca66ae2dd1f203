package helpers

import (
	"errors"
	"strings"
)

// ErrNoJSON is returned when a model response carries no JSON value.
var ErrNoJSON = errors.New("no balanced JSON object/array found")

// StripCodeFence removes a surrounding ``` or ~~~ fence (with an optional
// language tag such as ```json). Text without a leading fence is returned trimmed.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\uFEFF"))
	for _, fence := range []string{"```", "~~~"} {
		if !strings.HasPrefix(s, fence) {
			continue
		}
		rest := s[len(fence):]
		nl := strings.IndexByte(rest, '\n')
		if nl == -1 {
			return strings.TrimSpace(strings.TrimSuffix(rest, fence))
		}
		rest = rest[nl+1:]
		if end := strings.LastIndex(rest, fence); end != -1 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	return s
}

// ExtractJSON returns the first balanced JSON object or array in s after
// removing any code fence. Braces inside strings are ignored.
func ExtractJSON(s string) (string, error) {
	s = StripCodeFence(s)
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		if out, ok := balancedFrom(s, i); ok {
			return out, nil
		}
	}
	return "", ErrNoJSON
}

func balancedFrom(s string, start int) (string, bool) {
	var (
		stack    = []byte{s[start]}
		inString bool
		escape   bool
	)
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			top := stack[len(stack)-1]
			if (top == '{' && c != '}') || (top == '[' && c != ']') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
