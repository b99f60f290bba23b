package hotkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSpecNormalizes(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"ctrl+shift+space":       "ctrl+shift+space",
		"Shift + CTRL + Space":   "ctrl+shift+space",
		"cmd+option+r":           "alt+super+r",
		"control+ctrl+f9":        "ctrl+f9",
		"super+return":           "super+enter",
		"esc":                    "escape",
		"alt+shift+ctrl+super+1": "ctrl+shift+alt+super+1",
	}
	for input, want := range cases {
		spec, err := ParseSpec(input)
		require.NoError(t, err, input)
		require.Equal(t, want, spec.String(), input)
	}
}

func TestParseSpecRejectsInvalid(t *testing.T) {
	t.Parallel()

	_, err := ParseSpec("   ")
	require.ErrorIs(t, err, ErrEmptySpec)

	for _, input := range []string{"ctrl+shift", "ctrl++a", "ctrl+a+b", "ctrl+hyper", "f13", "f01"} {
		_, err := ParseSpec(input)
		require.Error(t, err, input)
	}
}

func TestSpecHas(t *testing.T) {
	t.Parallel()

	spec, err := ParseSpec("ctrl+space")
	require.NoError(t, err)
	require.True(t, spec.Has(ModCtrl))
	require.False(t, spec.Has(ModShift))
	require.Equal(t, "space", spec.Key)
}

func TestResolveMapsEveryParsableKey(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"ctrl+shift+space", "alt+a", "super+z", "0", "9", "f1", "f12", "tab", "delete", "up"} {
		spec, err := ParseSpec(input)
		require.NoError(t, err, input)
		_, _, err = resolve(spec)
		require.NoError(t, err, input)
	}
}
