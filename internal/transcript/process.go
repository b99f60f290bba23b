// Package transcript post-processes recognized text before it is typed.
package transcript

import (
	"strings"
	"unicode"
)

// Options selects the post-processing steps applied by Process.
type Options struct {
	RemoveTrailingPeriod bool
	Lowercase            bool
	TrailingSpace        bool
	CapitalizeSentences  bool
}

// Process normalizes whitespace and applies the selected transforms in a fixed
// order: sentence case, trailing period removal, lowercasing, trailing space.
// Blank input always yields "".
func Process(text string, opts Options) string {
	out := strings.Join(strings.Fields(text), " ")
	if out == "" {
		return ""
	}

	if opts.CapitalizeSentences {
		out = capitalizeSentences(out)
		out = capitalizePronounI(out)
	}
	if opts.RemoveTrailingPeriod {
		out = trimTrailingPeriod(out)
	}
	if opts.Lowercase {
		out = strings.ToLower(out)
	}
	if out == "" {
		return ""
	}
	if opts.TrailingSpace {
		out += " "
	}
	return out
}

// trimTrailingPeriod drops a single final period. Ellipses are left alone.
func trimTrailingPeriod(text string) string {
	if !strings.HasSuffix(text, ".") || strings.HasSuffix(text, "..") {
		return text
	}
	return strings.TrimRightFunc(strings.TrimSuffix(text, "."), unicode.IsSpace)
}
