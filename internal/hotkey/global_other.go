//go:build !linux

package hotkey

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.design/x/hotkey"
)

// Global grabs a system-wide hotkey through the platform window system.
type Global struct {
	logger zerolog.Logger

	events chan Event

	mu   sync.Mutex
	hk   *hotkey.Hotkey
	stop chan struct{}
	done chan struct{}
}

// NewGlobal constructs an unregistered global listener.
func NewGlobal(logger zerolog.Logger) *Global {
	return &Global{
		logger: logger,
		events: make(chan Event, eventBuffer),
	}
}

// Register grabs spec, replacing any previous registration.
func (g *Global) Register(spec Spec) error {
	mods, key, err := resolve(spec)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.unregisterLocked()

	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("register global hotkey %s: %w", spec, err)
	}

	g.hk = hk
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	go g.forward(hk, g.stop, g.done)

	g.logger.Info().Str("hotkey", spec.String()).Msg("global hotkey registered")
	return nil
}

func (g *Global) forward(hk *hotkey.Hotkey, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-hk.Keydown():
			emit(g.events, Event{Pressed: true})
		case <-hk.Keyup():
			emit(g.events, Event{Pressed: false})
		}
	}
}

// Unregister releases the grab. It is safe to call when nothing is registered.
func (g *Global) Unregister() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unregisterLocked()
}

func (g *Global) unregisterLocked() {
	if g.hk == nil {
		return
	}
	close(g.stop)
	<-g.done
	g.hk.Unregister()
	g.hk = nil
}

func (g *Global) Events() <-chan Event { return g.events }

// Diagnose reports whether global grabs are available on this platform.
func Diagnose() (string, error) {
	return "global hotkey grabs available", nil
}

// resolve maps a Spec onto platform hotkey values.
func resolve(spec Spec) ([]hotkey.Modifier, hotkey.Key, error) {
	key, ok := lookupKey(spec.Key)
	if !ok {
		return nil, 0, fmt.Errorf("key %q has no global hotkey mapping", spec.Key)
	}
	mods := make([]hotkey.Modifier, 0, len(spec.Modifiers))
	for _, m := range spec.Modifiers {
		mod, ok := platformModifiers[m]
		if !ok {
			return nil, 0, fmt.Errorf("modifier %q is not supported on this platform", m)
		}
		mods = append(mods, mod)
	}
	return mods, key, nil
}

var namedKeys = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"enter":  hotkey.KeyReturn,
	"escape": hotkey.KeyEscape,
	"tab":    hotkey.KeyTab,
	"delete": hotkey.KeyDelete,
	"left":   hotkey.KeyLeft,
	"right":  hotkey.KeyRight,
	"up":     hotkey.KeyUp,
	"down":   hotkey.KeyDown,
	"f1":     hotkey.KeyF1,
	"f2":     hotkey.KeyF2,
	"f3":     hotkey.KeyF3,
	"f4":     hotkey.KeyF4,
	"f5":     hotkey.KeyF5,
	"f6":     hotkey.KeyF6,
	"f7":     hotkey.KeyF7,
	"f8":     hotkey.KeyF8,
	"f9":     hotkey.KeyF9,
	"f10":    hotkey.KeyF10,
	"f11":    hotkey.KeyF11,
	"f12":    hotkey.KeyF12,
}

var letterKeys = [26]hotkey.Key{
	hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF,
	hotkey.KeyG, hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL,
	hotkey.KeyM, hotkey.KeyN, hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR,
	hotkey.KeyS, hotkey.KeyT, hotkey.KeyU, hotkey.KeyV, hotkey.KeyW, hotkey.KeyX,
	hotkey.KeyY, hotkey.KeyZ,
}

var digitKeys = [10]hotkey.Key{
	hotkey.Key0, hotkey.Key1, hotkey.Key2, hotkey.Key3, hotkey.Key4,
	hotkey.Key5, hotkey.Key6, hotkey.Key7, hotkey.Key8, hotkey.Key9,
}

func lookupKey(name string) (hotkey.Key, bool) {
	name = strings.ToLower(name)
	if len(name) == 1 {
		switch c := name[0]; {
		case c >= 'a' && c <= 'z':
			return letterKeys[c-'a'], true
		case c >= '0' && c <= '9':
			return digitKeys[c-'0'], true
		}
		return 0, false
	}
	key, ok := namedKeys[name]
	return key, ok
}
