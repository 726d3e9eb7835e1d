package ranking

import (
	"strings"
	"unicode"
)

// Tokenize lower-cases s and splits it on anything that is not a letter or
// digit. Mixed-case words also contribute their camelCase and letter/digit
// parts, so "ModuleNotFoundError" yields "modulenotfounderror", "module",
// "not", "found" and "error". Order follows s; duplicates are kept.
func Tokenize(s string) []string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var tokens []string
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
		parts := splitCamel(w)
		if len(parts) > 1 {
			tokens = append(tokens, parts...)
		}
	}
	return tokens
}

// splitCamel splits on lower→upper transitions, at the end of an
// upper-case run ("HTTPError" → "http", "error") and between letters and
// digits ("HTTP2Error" → "http", "2", "error").
func splitCamel(w string) []string {
	runes := []rune(w)
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := unicode.IsLower(prev) && unicode.IsUpper(cur) ||
			unicode.IsLetter(prev) && unicode.IsDigit(cur) ||
			unicode.IsDigit(prev) && unicode.IsLetter(cur)
		if !boundary && unicode.IsUpper(prev) && unicode.IsUpper(cur) &&
			i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			boundary = true
		}
		if boundary {
			parts = append(parts, strings.ToLower(string(runes[start:i])))
			start = i
		}
	}
	parts = append(parts, strings.ToLower(string(runes[start:])))
	return parts
}
