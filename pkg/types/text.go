package types

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it into word tokens. A word is a
// maximal run of letters, digits and underscores.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// TruncateRunes cuts s to at most n runes and appends "..." when it cut
// anything.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
