package session

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/config"
	"github.com/rbright/voxkey/internal/fsm"
	"github.com/rbright/voxkey/internal/hotkey"
	"github.com/rbright/voxkey/internal/transcribe"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeConfig struct {
	mu  sync.Mutex
	cfg config.Config
	err error
}

func (f *fakeConfig) Current() (config.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, f.err
}

func (f *fakeConfig) setMode(mode config.Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.Recording.Mode = mode
}

type fakeCapture struct {
	mu        sync.Mutex
	chunks    chan []byte
	recording bool
	starts    int
	stops     int
	pcmBytes  int
	startErr  error
	err       error
	// startGate, when set, holds StartRecording until closed; startEntered
	// is signalled first.
	startGate    chan struct{}
	startEntered chan struct{}
}

func (f *fakeCapture) StartRecording(_ context.Context, _ int) (<-chan []byte, error) {
	if f.startGate != nil {
		f.startEntered <- struct{}{}
		<-f.startGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.starts++
	f.recording = true
	f.err = nil
	f.chunks = make(chan []byte, 64)
	return f.chunks, nil
}

func (f *fakeCapture) StopRecording() (audio.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.recording {
		return audio.Recording{}, &audio.CaptureError{Op: "stop", Err: audio.ErrNotRecording}
	}
	f.recording = false
	f.stops++
	close(f.chunks)
	return audio.Recording{
		ID:         "rec",
		PCM:        make([]byte, f.pcmBytes),
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	}, nil
}

func (f *fakeCapture) IsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

func (f *fakeCapture) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeCapture) send(chunk []byte) {
	f.mu.Lock()
	ch := f.chunks
	f.mu.Unlock()
	ch <- chunk
}

// fail simulates a device fault ending the stream.
func (f *fakeCapture) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recording = false
	f.err = &audio.CaptureError{Op: "stream", Err: err}
	close(f.chunks)
}

func (f *fakeCapture) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func (f *fakeCapture) setDuration(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pcmBytes = int(d.Seconds()*audio.SampleRate) * audio.BytesPerSample
}

type fakeHotkey struct {
	registered []hotkey.Spec
	unregister int
	events     chan hotkey.Event
	err        error
}

func newFakeHotkey() *fakeHotkey {
	return &fakeHotkey{events: make(chan hotkey.Event, 16)}
}

func (f *fakeHotkey) Register(spec hotkey.Spec) error {
	if f.err != nil {
		return f.err
	}
	f.registered = append(f.registered, spec)
	return nil
}

func (f *fakeHotkey) Unregister()                 { f.unregister++ }
func (f *fakeHotkey) Events() <-chan hotkey.Event { return f.events }

func (f *fakeHotkey) press()   { f.events <- hotkey.Event{Pressed: true} }
func (f *fakeHotkey) release() { f.events <- hotkey.Event{Pressed: false} }

type fakeBackend struct {
	calls  atomic.Int32
	result transcribe.Result
	// block makes Transcribe wait for release or cancellation.
	block   chan struct{}
	started chan struct{}
	hook    func()
}

func (f *fakeBackend) Transcribe(ctx context.Context, _ audio.Recording) transcribe.Result {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.hook != nil {
		f.hook()
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return transcribe.Failed(ctx.Err())
		}
	}
	return f.result
}

type fakeTyper struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeTyper) TypeText(ctx context.Context, text string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeTyper) typed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeIndicator struct {
	recording atomic.Int32
	loading   atomic.Int32
	errors    atomic.Int32
	completes atomic.Int32
	cancels   atomic.Int32
}

func (f *fakeIndicator) ShowRecording(context.Context)     { f.recording.Add(1) }
func (f *fakeIndicator) ShowLoading(context.Context)       { f.loading.Add(1) }
func (f *fakeIndicator) ShowTranscribing(context.Context)  {}
func (f *fakeIndicator) ShowError(context.Context, string) { f.errors.Add(1) }
func (f *fakeIndicator) CueComplete(context.Context)       { f.completes.Add(1) }
func (f *fakeIndicator) CueCancel(context.Context)         { f.cancels.Add(1) }
func (f *fakeIndicator) Hide(context.Context)              {}

type completion struct {
	text   string
	result transcribe.Result
}

type reportedError struct {
	message string
	cause   error
}

// events collects observer notifications.
type events struct {
	mu          sync.Mutex
	states      []fsm.State
	completions []completion
	errors      []reportedError
}

func (e *events) observer() Observer {
	return Observer{
		StateChanged: func(_, next fsm.State) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.states = append(e.states, next)
		},
		TranscriptionCompleted: func(text string, result transcribe.Result) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.completions = append(e.completions, completion{text, result})
		},
		ErrorOccurred: func(message string, cause error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.errors = append(e.errors, reportedError{message, cause})
		},
	}
}

func (e *events) stateLog() []fsm.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]fsm.State(nil), e.states...)
}

func (e *events) completed() []completion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]completion(nil), e.completions...)
}

func (e *events) reported() []reportedError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]reportedError(nil), e.errors...)
}

// fakeClock advances by step on every reading, so each processed chunk is
// observed exactly step after the previous one.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

type harness struct {
	ctrl      *Controller
	config    *fakeConfig
	capture   *fakeCapture
	hotkey    *fakeHotkey
	backend   *fakeBackend
	typer     *fakeTyper
	indicator *fakeIndicator
	events    *events
	clock     *fakeClock
}

func testConfig(mode config.Mode) config.Config {
	cfg := config.Default()
	cfg.Recording.Mode = mode
	cfg.Recording.MinDurationMS = 100
	cfg.VAD.SilenceMS = 500
	cfg.Output.TypingDelayMS = 0
	cfg.Transcript = config.TranscriptConfig{RemoveTrailingPeriod: true, TrailingSpace: true}
	return cfg
}

func newHarness(t *testing.T, mode config.Mode) *harness {
	t.Helper()

	h := &harness{
		config:    &fakeConfig{cfg: testConfig(mode)},
		capture:   &fakeCapture{},
		hotkey:    newFakeHotkey(),
		backend:   &fakeBackend{result: transcribe.Succeeded("Hello World.", "en", time.Second)},
		typer:     &fakeTyper{},
		indicator: &fakeIndicator{},
		events:    &events{},
	}
	h.clock = &fakeClock{
		now:  time.Unix(1_700_000_000, 0),
		step: time.Duration(h.config.cfg.VAD.SilenceMS) * time.Millisecond,
	}
	h.capture.setDuration(2 * time.Second)
	h.ctrl = NewController(Deps{
		Config:    h.config,
		Capture:   h.capture,
		Hotkey:    h.hotkey,
		Backend:   h.backend,
		Typer:     h.typer,
		Indicator: h.indicator,
		Observer:  h.events.observer(),
		Logger:    zerolog.Nop(),
	})
	h.ctrl.now = h.clock.Now
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Initialize(context.Background()))
	require.NoError(t, h.ctrl.Start(context.Background()))
	t.Cleanup(h.ctrl.Close)
}

func (h *harness) press() { h.hotkey.press() }

func (h *harness) release() { h.hotkey.release() }

func (h *harness) waitState(t *testing.T, want fsm.State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.State() == want }, 2*time.Second, 2*time.Millisecond,
		"state %s, want %s", h.ctrl.State(), want)
}

func (h *harness) waitStarts(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		starts, _ := h.capture.counts()
		return starts == want
	}, 2*time.Second, 2*time.Millisecond)
}

// speakThenSilence drives the voice-activity tracker through one speech burst
// followed by exactly the configured silence.
func (h *harness) speakThenSilence() {
	h.capture.send(loudChunk())
	h.capture.send(quietChunk())
}

func loudChunk() []byte {
	chunk := make([]byte, 640)
	for i := 0; i < len(chunk); i += 2 {
		binary.LittleEndian.PutUint16(chunk[i:], uint16(int16(12000)))
	}
	return chunk
}

func quietChunk() []byte {
	return make([]byte, 640)
}
