package typing

import (
	"sync"

	"github.com/micmonay/keybd_event"
)

// keySender presses one key, optionally shifted, or the platform paste shortcut.
type keySender interface {
	Tap(code int, shift bool) error
	Paste() error
}

// bonding sends key events through a lazily created virtual keyboard.
type bonding struct {
	once sync.Once
	mu   sync.Mutex
	kb   keybd_event.KeyBonding
	err  error
}

func (b *bonding) init() error {
	b.once.Do(func() {
		b.kb, b.err = keybd_event.NewKeyBonding()
	})
	return b.err
}

func (b *bonding) Tap(code int, shift bool) error {
	if err := b.init(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.kb.Clear()
	b.kb.SetKeys(code)
	b.kb.HasSHIFT(shift)
	b.kb.HasCTRL(false)
	b.kb.HasSuper(false)
	return b.kb.Launching()
}

func (b *bonding) Paste() error {
	if err := b.init(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.kb.Clear()
	b.kb.SetKeys(keybd_event.VK_V)
	b.kb.HasSHIFT(false)
	setPasteModifier(&b.kb)
	return b.kb.Launching()
}
