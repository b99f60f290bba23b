// Package hotkey parses activation hotkey specifications and listens for them.
package hotkey

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Modifier is a normalized modifier name.
type Modifier string

const (
	ModCtrl  Modifier = "ctrl"
	ModShift Modifier = "shift"
	ModAlt   Modifier = "alt"
	ModSuper Modifier = "super"
)

// modifierOrder is the canonical rendering order of modifiers.
var modifierOrder = []Modifier{ModCtrl, ModShift, ModAlt, ModSuper}

var modifierAliases = map[string]Modifier{
	"ctrl": ModCtrl, "control": ModCtrl, "ctl": ModCtrl,
	"shift": ModShift,
	"alt":   ModAlt, "option": ModAlt, "opt": ModAlt, "meta": ModAlt,
	"super": ModSuper, "cmd": ModSuper, "command": ModSuper, "win": ModSuper, "mod4": ModSuper,
}

var keyAliases = map[string]string{
	"return": "enter", "esc": "escape", "spacebar": "space",
}

// ErrEmptySpec is returned when a hotkey specification has no key.
var ErrEmptySpec = errors.New("hotkey specification is empty")

// Spec is a normalized key plus modifier set, for example ctrl+shift+space.
type Spec struct {
	Modifiers []Modifier
	Key       string
}

// ParseSpec normalizes a "+"-separated specification. Names are case
// insensitive, modifiers may appear in any order, and duplicates collapse.
// Exactly one non-modifier key is required.
func ParseSpec(raw string) (Spec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Spec{}, ErrEmptySpec
	}

	var (
		spec Spec
		seen = map[Modifier]bool{}
	)
	for _, part := range strings.Split(raw, "+") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			return Spec{}, fmt.Errorf("hotkey %q: empty key name", raw)
		}
		if mod, ok := modifierAliases[name]; ok {
			seen[mod] = true
			continue
		}
		if alias, ok := keyAliases[name]; ok {
			name = alias
		}
		if !knownKey(name) {
			return Spec{}, fmt.Errorf("hotkey %q: unknown key %q", raw, name)
		}
		if spec.Key != "" {
			return Spec{}, fmt.Errorf("hotkey %q: multiple keys %q and %q", raw, spec.Key, name)
		}
		spec.Key = name
	}
	if spec.Key == "" {
		return Spec{}, fmt.Errorf("hotkey %q: missing non-modifier key", raw)
	}

	for _, mod := range modifierOrder {
		if seen[mod] {
			spec.Modifiers = append(spec.Modifiers, mod)
		}
	}
	return spec, nil
}

// String renders the canonical form of the spec.
func (s Spec) String() string {
	parts := make([]string, 0, len(s.Modifiers)+1)
	for _, mod := range s.Modifiers {
		parts = append(parts, string(mod))
	}
	parts = append(parts, s.Key)
	return strings.Join(parts, "+")
}

// Has reports whether mod is part of the spec.
func (s Spec) Has(mod Modifier) bool {
	return slices.Contains(s.Modifiers, mod)
}

func knownKey(name string) bool {
	if len(name) == 1 {
		c := name[0]
		return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
	}
	switch name {
	case "space", "enter", "escape", "tab", "delete", "left", "right", "up", "down":
		return true
	}
	if strings.HasPrefix(name, "f") {
		var n int
		if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && n >= 1 && n <= 12 && name == fmt.Sprintf("f%d", n) {
			return true
		}
	}
	return false
}
