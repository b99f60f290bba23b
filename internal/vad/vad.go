// Package vad classifies PCM chunks as speech or silence and tracks silence
// with hysteresis so short pauses do not end a recording.
package vad

import (
	"encoding/binary"
	"math"
	"time"
)

// DefaultThreshold is the RMS level on a [-1,1] scale above which a chunk counts as speech.
const DefaultThreshold = 0.01

// RMS returns the root-mean-square level of little-endian signed 16-bit samples,
// normalized to [0,1]. A trailing odd byte is ignored.
func RMS(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:]))) / 32768.0
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(n))
}

// Classify reports whether chunk carries speech at the given threshold.
func Classify(chunk []byte, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return RMS(chunk) > threshold
}

// Transition is a change in speaking state emitted by Tracker.
type Transition struct {
	Speaking bool
	Silence  time.Duration
}

// Tracker holds per-recording voice-activity state. It is owned by a single
// goroutine and must be Reset at every recording start.
type Tracker struct {
	threshold float64
	silence   time.Duration

	speaking     bool
	lastActivity time.Time
	level        float64
}

// NewTracker builds a tracker for the given RMS threshold and sustained-silence duration.
func NewTracker(threshold float64, silence time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold, silence: silence}
}

// Process classifies chunk observed at now. It returns a transition and true
// when speaking state changes.
func (t *Tracker) Process(chunk []byte, now time.Time) (Transition, bool) {
	t.level = RMS(chunk)

	if t.level > t.threshold {
		t.lastActivity = now
		if !t.speaking {
			t.speaking = true
			return Transition{Speaking: true}, true
		}
		return Transition{}, false
	}

	if !t.speaking {
		return Transition{}, false
	}

	elapsed := now.Sub(t.lastActivity)
	if elapsed >= t.silence {
		t.speaking = false
		return Transition{Speaking: false, Silence: elapsed}, true
	}
	return Transition{}, false
}

// Reset clears all state so timing never leaks between recordings.
func (t *Tracker) Reset() {
	t.speaking = false
	t.lastActivity = time.Time{}
	t.level = 0
}

// Speaking reports the current speaking state.
func (t *Tracker) Speaking() bool { return t.speaking }

// Level reports the RMS of the last processed chunk.
func (t *Tracker) Level() float64 { return t.level }

// LastActivity reports when speech was last observed.
func (t *Tracker) LastActivity() time.Time { return t.lastActivity }
