package product

import (
	"errors"
	"strings"
)

var (
	ErrNoObject   = errors.New("no object at offset")
	ErrUnbalanced = errors.New("unbalanced braces")
)

// ExtractJSONObject returns the balanced {...} substring that starts at
// s[start]. Braces inside string literals and escaped quotes are ignored.
func ExtractJSONObject(s string, start int) (string, error) {
	if start < 0 || start >= len(s) || s[start] != '{' {
		return "", ErrNoObject
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrUnbalanced
}

// FindPayload locates the quoted key in script and returns the object that
// follows it.
func FindPayload(script, key string) (string, bool) {
	quoted := `"` + key + `"`
	from := 0
	for {
		idx := strings.Index(script[from:], quoted)
		if idx < 0 {
			return "", false
		}
		after := from + idx + len(quoted)
		brace := strings.IndexByte(script[after:], '{')
		if brace < 0 {
			return "", false
		}
		// Only accept "key": { with nothing but a colon and spaces between.
		if gap := strings.TrimSpace(script[after : after+brace]); gap == ":" {
			obj, err := ExtractJSONObject(script, after+brace)
			if err == nil {
				return obj, true
			}
		}
		from = after
	}
}
