package transcript

import (
	"strings"
	"unicode"
)

// abbreviations are tokens whose trailing period does not end a sentence.
var abbreviations = map[string]struct{}{
	"e.g": {}, "i.e": {}, "cf": {}, "etc": {}, "vs": {},
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "sr": {}, "jr": {}, "st": {},
	"fig": {}, "no": {}, "approx": {}, "dept": {}, "est": {},
}

// lowercaseAbbreviations stay lowercase even at sentence starts.
var lowercaseAbbreviations = map[string]struct{}{
	"e.g": {}, "i.e": {}, "etc": {}, "vs": {},
}

func capitalizeSentences(text string) string {
	runes := []rune(text)

	var out strings.Builder
	out.Grow(len(text))

	capitalize := true
	pending := false
	sawSpace := false

	for i, r := range runes {
		switch {
		case capitalize && unicode.IsLetter(r):
			if !startsLowercaseAbbreviation(runes, i) {
				r = unicode.ToUpper(r)
			}
			capitalize = false
		case pending:
			switch {
			case unicode.IsSpace(r):
				sawSpace = true
			case unicode.IsLetter(r):
				if sawSpace && !startsLowercaseAbbreviation(runes, i) {
					r = unicode.ToUpper(r)
				}
				pending = false
			case isSentencePrefixRune(r):
				// Wait for a letter: `. "quote"`.
			default:
				pending = false
			}
		}

		out.WriteRune(r)

		switch r {
		case '.':
			pending = isSentenceBoundaryPeriod(runes, i)
			sawSpace = false
		case '!', '?':
			pending = true
			sawSpace = false
		}
	}

	return out.String()
}

// isSentenceBoundaryPeriod reports whether the period at idx ends a sentence.
// Decimals, embedded periods (example.com), single-letter initials, and known
// abbreviations do not.
func isSentenceBoundaryPeriod(runes []rune, idx int) bool {
	if idx+1 < len(runes) && !unicode.IsSpace(runes[idx+1]) && !isSentencePrefixRune(runes[idx+1]) {
		return false
	}

	token := strings.ToLower(tokenBefore(runes, idx))
	if token == "" {
		return true
	}
	if _, ok := abbreviations[token]; ok {
		return false
	}
	if len([]rune(token)) == 1 && unicode.IsLetter([]rune(token)[0]) && token != "i" {
		return false
	}
	return true
}

// tokenBefore returns the letters and inner periods preceding idx.
func tokenBefore(runes []rune, idx int) string {
	start := idx
	for start > 0 {
		r := runes[start-1]
		if unicode.IsLetter(r) || r == '.' {
			start--
			continue
		}
		break
	}
	return strings.Trim(string(runes[start:idx]), ".")
}

func startsLowercaseAbbreviation(runes []rune, idx int) bool {
	end := idx
	for end < len(runes) && (unicode.IsLetter(runes[end]) || runes[end] == '.') {
		end++
	}
	token := strings.ToLower(strings.Trim(string(runes[idx:end]), "."))
	_, ok := lowercaseAbbreviations[token]
	return ok
}

func isSentencePrefixRune(r rune) bool {
	switch r {
	case ')', ']', '}', '\'', '"', '’', '”':
		return true
	default:
		return false
	}
}
