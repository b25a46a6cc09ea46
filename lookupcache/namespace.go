package lookupcache

import (
	"strings"
	"unicode"
)

// toSnake turns a reflected type name into a cache namespace segment.
// Punctuation from generic or pointer type names collapses to a single
// underscore so namespaces never contain the key separator.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	pending := false
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower {
					pending = true
				}
			}
			r = unicode.ToLower(r)
		case unicode.IsLower(r), unicode.IsDigit(r):
		default:
			pending = pending || b.Len() > 0
			continue
		}

		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(r)
	}

	return b.String()
}
