package audio

import (
	"errors"
	"fmt"
	"time"
)

const (
	// SampleRate is the capture rate used for every recording.
	SampleRate = 16000
	// Channels is the capture channel count used for every recording.
	Channels = 1
	// BytesPerSample is the width of one s16le sample.
	BytesPerSample = 2
)

var (
	// ErrAlreadyRecording is returned when StartRecording is called during a recording.
	ErrAlreadyRecording = errors.New("capture already recording")
	// ErrNotRecording is returned when StopRecording is called without an active recording.
	ErrNotRecording = errors.New("capture not recording")
	// ErrStreamLost is reported when the sound server ends a stream on its own,
	// for example after the source disappears.
	ErrStreamLost = errors.New("capture stream lost")
)

// Recording is one captured session of s16le PCM audio.
type Recording struct {
	ID         string
	PCM        []byte
	SampleRate int
	Channels   int
	StartedAt  time.Time
	Device     string
}

// Duration derives the audio length from the PCM byte count.
func (r Recording) Duration() time.Duration {
	frameBytes := r.Channels * BytesPerSample
	if r.SampleRate <= 0 || frameBytes <= 0 {
		return 0
	}
	frames := len(r.PCM) / frameBytes
	return time.Duration(frames) * time.Second / time.Duration(r.SampleRate)
}

// Empty reports whether the recording carries no audio.
func (r Recording) Empty() bool {
	return len(r.PCM) == 0
}

// CaptureError reports a capture backend fault. Sessions that hit one are discarded.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
