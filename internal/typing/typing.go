// Package typing delivers processed transcripts to the focused application,
// either as simulated keystrokes or through the clipboard.
package typing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	MethodType      = "type"
	MethodClipboard = "clipboard"
)

// Typer emits text into whatever currently has keyboard focus.
type Typer interface {
	TypeText(ctx context.Context, text string, delay time.Duration) error
}

// New builds the Typer for an output method.
func New(method string, logger zerolog.Logger) (Typer, error) {
	switch method {
	case MethodType, "":
		return NewKeyboard(logger), nil
	case MethodClipboard:
		return NewClipboard(logger), nil
	default:
		return nil, fmt.Errorf("unsupported output method %q", method)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
