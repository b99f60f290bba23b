//go:build linux

package hotkey

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	evKey         = 1
	keyRelease    = 0
	keyPress      = 1
	inputEventLen = 24 // timeval (16) + type (2) + code (2) + value (4)
)

var (
	inputDir = "/dev/input"
	sysDir   = "/sys/class/input"
)

// Global listens for the hotkey by reading keyboard devices under /dev/input.
// It works under X11 and Wayland alike but needs read access to the devices,
// usually through membership in the input group.
type Global struct {
	logger zerolog.Logger
	events chan Event

	mu    sync.Mutex
	files []*os.File
	wg    sync.WaitGroup
}

// NewGlobal constructs an unregistered global listener.
func NewGlobal(logger zerolog.Logger) *Global {
	return &Global{
		logger: logger,
		events: make(chan Event, eventBuffer),
	}
}

// Register opens every readable keyboard and watches it for spec, replacing
// any previous registration.
func (g *Global) Register(spec Spec) error {
	c, err := newChord(spec)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.unregisterLocked()

	keyboards, err := findKeyboards()
	if err != nil {
		return fmt.Errorf("scan input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return errors.New("no keyboard devices found (is the user in the 'input' group?)")
	}

	for _, path := range keyboards {
		f, err := os.Open(path)
		if err != nil {
			g.logger.Debug().Err(err).Str("device", path).Msg("skip keyboard")
			continue
		}
		g.files = append(g.files, f)
		g.wg.Add(1)
		go func(f *os.File, c *chord) {
			defer g.wg.Done()
			err := readEvents(f, c, func(ev Event) {
				if !emit(g.events, ev) {
					g.logger.Warn().Bool("pressed", ev.Pressed).Msg("hotkey edge dropped")
				}
			})
			if err != nil && !errors.Is(err, os.ErrClosed) {
				g.logger.Warn().Err(err).Str("device", f.Name()).Msg("keyboard read stopped")
			}
		}(f, c.clone())
	}
	if len(g.files) == 0 {
		return fmt.Errorf("could not open any of %d keyboard device(s) (run: sudo usermod -aG input $USER, then re-login)", len(keyboards))
	}

	g.logger.Info().Str("hotkey", spec.String()).Int("keyboards", len(g.files)).Msg("global hotkey registered")
	return nil
}

// Unregister closes every device. It is safe to call when nothing is registered.
func (g *Global) Unregister() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unregisterLocked()
}

func (g *Global) unregisterLocked() {
	for _, f := range g.files {
		_ = f.Close()
	}
	g.wg.Wait()
	g.files = nil
}

func (g *Global) Events() <-chan Event { return g.events }

// readEvents decodes input_event records from r until it fails, feeding key
// edges through c.
func readEvents(r io.Reader, c *chord, out func(Event)) error {
	buf := make([]byte, inputEventLen*16)
	var pending int
	for {
		n, err := r.Read(buf[pending:])
		pending += n
		off := 0
		for ; off+inputEventLen <= pending; off += inputEventLen {
			typ := binary.LittleEndian.Uint16(buf[off+16:])
			if typ != evKey {
				continue
			}
			code := binary.LittleEndian.Uint16(buf[off+18:])
			value := int32(binary.LittleEndian.Uint32(buf[off+20:]))
			if ev, ok := c.feed(code, value); ok {
				out(ev)
			}
		}
		pending = copy(buf, buf[off:pending])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// chord tracks held keys on one device and reports edges of the full combo.
type chord struct {
	key    uint16
	mods   [][]uint16
	held   map[uint16]bool
	active bool
}

func newChord(spec Spec) (*chord, error) {
	key, ok := evdevKey(spec.Key)
	if !ok {
		return nil, fmt.Errorf("key %q has no keyboard mapping", spec.Key)
	}
	c := &chord{key: key, held: map[uint16]bool{}}
	for _, m := range spec.Modifiers {
		codes, ok := evdevModifiers[m]
		if !ok {
			return nil, fmt.Errorf("modifier %q is not supported", m)
		}
		c.mods = append(c.mods, codes)
	}
	return c, nil
}

func (c *chord) clone() *chord {
	return &chord{key: c.key, mods: c.mods, held: map[uint16]bool{}}
}

// feed applies one key event. Autorepeat (value 2) never produces an edge.
func (c *chord) feed(code uint16, value int32) (Event, bool) {
	if code != c.key {
		switch value {
		case keyPress:
			c.held[code] = true
		case keyRelease:
			delete(c.held, code)
		}
		return Event{}, false
	}

	switch {
	case value == keyPress && !c.active && c.modifiersHeld():
		c.active = true
		return Event{Pressed: true}, true
	case value == keyRelease && c.active:
		c.active = false
		return Event{Pressed: false}, true
	}
	return Event{}, false
}

func (c *chord) modifiersHeld() bool {
	for _, codes := range c.mods {
		held := false
		for _, code := range codes {
			if c.held[code] {
				held = true
				break
			}
		}
		if !held {
			return false
		}
	}
	return true
}

// Left and right variants from linux/input-event-codes.h.
var evdevModifiers = map[Modifier][]uint16{
	ModCtrl:  {29, 97},
	ModShift: {42, 54},
	ModAlt:   {56, 100},
	ModSuper: {125, 126},
}

var evdevNamed = map[string]uint16{
	"space": 57, "enter": 28, "escape": 1, "tab": 15, "delete": 111,
	"left": 105, "right": 106, "up": 103, "down": 108,
	"f1": 59, "f2": 60, "f3": 61, "f4": 62, "f5": 63, "f6": 64,
	"f7": 65, "f8": 66, "f9": 67, "f10": 68, "f11": 87, "f12": 88,
}

var evdevLetters = [26]uint16{
	30, 48, 46, 32, 18, 33, 34, 35, 23, 36, 37, 38, 50,
	49, 24, 25, 16, 19, 31, 20, 22, 47, 17, 45, 21, 44,
}

func evdevKey(name string) (uint16, bool) {
	name = strings.ToLower(name)
	if len(name) == 1 {
		switch c := name[0]; {
		case c >= 'a' && c <= 'z':
			return evdevLetters[c-'a'], true
		case c == '0':
			return 11, true
		case c >= '1' && c <= '9':
			return uint16(c-'1') + 2, true
		}
		return 0, false
	}
	code, ok := evdevNamed[name]
	return code, ok
}

func findKeyboards() ([]string, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, err
	}
	var keyboards []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") || !isKeyboard(e.Name()) {
			continue
		}
		keyboards = append(keyboards, filepath.Join(inputDir, e.Name()))
	}
	return keyboards, nil
}

// isKeyboard treats devices with a long key capability bitmap as keyboards.
func isKeyboard(eventName string) bool {
	data, err := os.ReadFile(filepath.Join(sysDir, eventName, "device", "capabilities", "key"))
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(data))) > 10
}

// Diagnose checks that at least one keyboard device can be opened.
func Diagnose() (string, error) {
	keyboards, err := findKeyboards()
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	if len(keyboards) == 0 {
		return "", errors.New("no keyboard devices found (is the user in the 'input' group?)")
	}
	for _, path := range keyboards {
		f, err := os.Open(path)
		if err == nil {
			_ = f.Close()
			return fmt.Sprintf("%d keyboard(s) found, opened %s", len(keyboards), path), nil
		}
	}
	return "", fmt.Errorf("found %d keyboard(s) but cannot open any (run: sudo usermod -aG input $USER)", len(keyboards))
}
