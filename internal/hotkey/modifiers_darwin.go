//go:build darwin

package hotkey

import "golang.design/x/hotkey"

var platformModifiers = map[Modifier]hotkey.Modifier{
	ModCtrl:  hotkey.ModCtrl,
	ModShift: hotkey.ModShift,
	ModAlt:   hotkey.ModOption,
	ModSuper: hotkey.ModCmd,
}
