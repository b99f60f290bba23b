package transcript

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var pronounIPattern = regexp.MustCompile(`\bi\b`)

// capitalizePronounI upper-cases a standalone "i", including contractions such
// as "i'm", but leaves initialisms like "i.e." untouched.
func capitalizePronounI(text string) string {
	matches := pronounIPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	out.Grow(len(text))

	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		out.WriteString(text[last:start])
		if partOfInitialism(text, start, end) {
			out.WriteString(text[start:end])
		} else {
			out.WriteString("I")
		}
		last = end
	}
	out.WriteString(text[last:])
	return out.String()
}

func partOfInitialism(text string, start, end int) bool {
	if end+1 < len(text) && text[end] == '.' {
		next, _ := utf8.DecodeRuneInString(text[end+1:])
		if unicode.IsLetter(next) {
			return true
		}
	}
	if start > 1 && text[start-1] == '.' && end < len(text) && text[end] == '.' {
		prev, _ := utf8.DecodeLastRuneInString(text[:start-1])
		if unicode.IsLetter(prev) {
			return true
		}
	}
	return false
}
