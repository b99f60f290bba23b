// Package transcribe defines the transcription backend contract, its result
// type, and the hosted OpenAI-compatible backend.
package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/voxkey/internal/audio"
)

// Result is the immutable outcome of one transcription attempt. Backends never
// return errors for ordinary failures; they report them here instead.
type Result struct {
	Success  bool
	Text     string
	Language string
	Duration time.Duration
	Error    string
}

// Succeeded builds a successful result.
func Succeeded(text, language string, duration time.Duration) Result {
	return Result{Success: true, Text: text, Language: language, Duration: duration}
}

// Failed builds a failed result from err.
func Failed(err error) Result {
	if err == nil {
		return Result{Error: "transcription failed"}
	}
	return Result{Error: err.Error()}
}

// Failedf builds a failed result from a formatted message.
func Failedf(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Blank reports whether a successful result carries no usable text.
func (r Result) Blank() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Backend turns a recording into text.
type Backend interface {
	Transcribe(ctx context.Context, rec audio.Recording) Result
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(context.Context, audio.Recording) Result

func (f BackendFunc) Transcribe(ctx context.Context, rec audio.Recording) Result {
	return f(ctx, rec)
}
