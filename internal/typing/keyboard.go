package typing

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"
)

// Keyboard types text one character at a time. Characters without a key on the
// US layout are pasted through the clipboard.
type Keyboard struct {
	keys      keySender
	writeClip func(string) error
	logger    zerolog.Logger
}

// NewKeyboard returns a Keyboard backed by a virtual input device.
func NewKeyboard(logger zerolog.Logger) *Keyboard {
	return &Keyboard{
		keys:      &bonding{},
		writeClip: clipboard.WriteAll,
		logger:    logger,
	}
}

// TypeText presses each character of text, waiting delay between characters.
// It stops at the first failed key press or when ctx is done.
func (k *Keyboard) TypeText(ctx context.Context, text string, delay time.Duration) error {
	first := true
	for _, r := range text {
		if !first {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		first = false

		code, shift, ok := keyFor(r)
		if ok {
			if err := k.keys.Tap(code, shift); err != nil {
				return fmt.Errorf("type %q: %w", r, err)
			}
			continue
		}

		k.logger.Debug().Str("rune", string(r)).Msg("pasting character without key mapping")
		if err := k.writeClip(string(r)); err != nil {
			return fmt.Errorf("set clipboard for %q: %w", r, err)
		}
		if err := k.keys.Paste(); err != nil {
			return fmt.Errorf("paste %q: %w", r, err)
		}
	}
	return nil
}
