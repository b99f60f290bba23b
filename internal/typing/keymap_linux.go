//go:build linux

package typing

import "github.com/micmonay/keybd_event"

// Linux key codes follow linux/input-event-codes.h.
var letterCodes = [26]int{
	30, 48, 46, 32, 18, 33, 34, 35, 23, 36,
	37, 38, 50, 49, 24, 25, 16, 19, 31, 20,
	22, 47, 17, 45, 21, 44,
}

var digitCodes = [10]int{11, 2, 3, 4, 5, 6, 7, 8, 9, 10}

type keyCode struct {
	code  int
	shift bool
}

var punctuationCodes = map[rune]keyCode{
	' ': {57, false}, '\n': {28, false}, '\t': {15, false},
	'.': {52, false}, ',': {51, false}, '/': {53, false},
	';': {39, false}, '\'': {40, false}, '[': {26, false},
	']': {27, false}, '-': {12, false}, '=': {13, false},
	'\\': {43, false}, '`': {41, false},
	'!': {2, true}, '@': {3, true}, '#': {4, true},
	'$': {5, true}, '%': {6, true}, '^': {7, true},
	'&': {8, true}, '*': {9, true}, '(': {10, true},
	')': {11, true}, '_': {12, true}, '+': {13, true},
	'{': {26, true}, '}': {27, true}, '|': {43, true},
	':': {39, true}, '"': {40, true}, '<': {51, true},
	'>': {52, true}, '?': {53, true}, '~': {41, true},
}

// keyFor maps r to a US-layout key press. ok is false for runes that must be
// pasted instead.
func keyFor(r rune) (code int, shift bool, ok bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return letterCodes[r-'a'], false, true
	case r >= 'A' && r <= 'Z':
		return letterCodes[r-'A'], true, true
	case r >= '0' && r <= '9':
		return digitCodes[r-'0'], false, true
	}
	if k, found := punctuationCodes[r]; found {
		return k.code, k.shift, true
	}
	return 0, false, false
}

func setPasteModifier(kb *keybd_event.KeyBonding) {
	kb.HasCTRL(true)
}
