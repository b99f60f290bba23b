package typing

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"
)

// Clipboard places the whole transcript on the clipboard and dispatches the
// paste shortcut.
type Clipboard struct {
	keys      keySender
	writeClip func(string) error
	logger    zerolog.Logger
}

// NewClipboard returns a Clipboard output.
func NewClipboard(logger zerolog.Logger) *Clipboard {
	return &Clipboard{
		keys:      &bonding{},
		writeClip: clipboard.WriteAll,
		logger:    logger,
	}
}

// TypeText writes text to the clipboard, waits delay for the selection owner to
// settle, then pastes. A failed paste keeps the clipboard set and is not an
// error.
func (c *Clipboard) TypeText(ctx context.Context, text string, delay time.Duration) error {
	if text == "" {
		return nil
	}
	if err := c.writeClip(text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	if err := sleep(ctx, delay); err != nil {
		return err
	}
	if err := c.keys.Paste(); err != nil {
		c.logger.Error().Err(err).Msg("paste dispatch failed; clipboard remains set")
	}
	return nil
}
