package config

import (
	"fmt"
	"strings"
	"unicode"
)

// ServerArgv splits local.server_cmd into a binary followed by extra flags.
func (c LocalConfig) ServerArgv() ([]string, error) {
	return splitCommand(c.ServerCmd)
}

// splitCommand tokenizes a shell-like command string. Quotes group words and a
// backslash escapes the next rune; no expansion is performed.
func splitCommand(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv    []string
		current strings.Builder
		quote   rune
		escape  bool
		started bool
	)

	flush := func() {
		if !started {
			return
		}
		argv = append(argv, current.String())
		current.Reset()
		started = false
	}

	for _, r := range input {
		switch {
		case escape:
			current.WriteRune(r)
			escape = false
		case r == '\\':
			escape = true
			started = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			started = true
		case unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
			started = true
		}
	}

	if escape {
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}

	flush()
	return argv, nil
}
