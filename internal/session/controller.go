// Package session coordinates the recording lifecycle: activation events,
// voice-activity auto-stop, transcription, and typed output.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/config"
	"github.com/rbright/voxkey/internal/fsm"
	"github.com/rbright/voxkey/internal/hotkey"
	"github.com/rbright/voxkey/internal/indicator"
	"github.com/rbright/voxkey/internal/transcribe"
	"github.com/rs/zerolog"
)

var (
	// ErrNotRunning is returned when events are submitted to a stopped controller.
	ErrNotRunning = errors.New("session controller is not running")
	// ErrAlreadyRunning is returned by Start when the event loop is active.
	ErrAlreadyRunning = errors.New("session controller is already running")
	// ErrNotInitialized is returned by Start before Initialize succeeded.
	ErrNotInitialized = errors.New("session controller is not initialized")
)

// ConfigSource supplies the current configuration at each activation decision.
type ConfigSource interface {
	Current() (config.Config, error)
}

// Capture is the audio capture backend.
type Capture interface {
	StartRecording(ctx context.Context, deviceIndex int) (<-chan []byte, error)
	StopRecording() (audio.Recording, error)
	IsRecording() bool
	Err() error
}

// Typer emits processed text into the focused application.
type Typer interface {
	TypeText(ctx context.Context, text string, delay time.Duration) error
}

// Observer receives lifecycle notifications. Nil fields are skipped. Callbacks
// run on controller goroutines and must not block for long.
type Observer struct {
	StateChanged           func(old, new fsm.State)
	TranscriptionCompleted func(text string, result transcribe.Result)
	ErrorOccurred          func(message string, cause error)
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Config    ConfigSource
	Capture   Capture
	Hotkey    hotkey.Listener
	Backend   transcribe.Backend
	Typer     Typer
	Indicator indicator.Controller
	Observer  Observer
	// Echo receives a styled copy of each transcript when output.echo is set.
	Echo io.Writer
	// Dump receives every stopped recording when debug.audio_dump is set.
	Dump   func(audio.Recording)
	Logger zerolog.Logger
}

// Controller is the recording orchestrator. All lifecycle transitions go
// through fsm.Transition under one lock; activation events are consumed by a
// single event loop, and each stop-and-transcribe runs on its own goroutine.
type Controller struct {
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time

	// notifyMu orders state-changed notifications with the transitions
	// that produce them.
	notifyMu sync.Mutex

	mu        sync.Mutex
	state     fsm.State
	spec      hotkey.Spec
	ready     bool
	rec       *recording
	gen       uint64
	runCtx    context.Context
	cancelRun context.CancelFunc
	loopDone  chan struct{}
	events    chan event

	pipelines sync.WaitGroup
}

// recording is the per-activation context: the policy and configuration
// captured when capture started, plus a cancellation scope.
type recording struct {
	gen    uint64
	mode   config.Mode
	cfg    config.Config
	ctx    context.Context
	cancel context.CancelFunc
}

// NewController constructs an idle controller with safe fallbacks for
// optional collaborators.
func NewController(deps Deps) *Controller {
	if deps.Indicator == nil {
		deps.Indicator = indicator.Nop{}
	}
	return &Controller{
		deps:   deps,
		logger: deps.Logger.With().Str("component", "session").Logger(),
		now:    time.Now,
		state:  fsm.StateIdle,
	}
}

// Initialize reads configuration, normalizes the hotkey specification, and
// registers it with the hotkey listener. Configuration failures are returned
// as *config.Error.
func (c *Controller) Initialize(_ context.Context) error {
	cfg, err := c.deps.Config.Current()
	if err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			return err
		}
		return &config.Error{Err: err}
	}

	spec, err := hotkey.ParseSpec(cfg.Hotkey)
	if err != nil {
		return &config.Error{Err: fmt.Errorf("hotkey: %w", err)}
	}
	if err := c.deps.Hotkey.Register(spec); err != nil {
		return fmt.Errorf("register hotkey %s: %w", spec, err)
	}

	c.mu.Lock()
	c.spec = spec
	c.ready = true
	c.mu.Unlock()

	c.logger.Info().Str("hotkey", spec.String()).Str("mode", string(cfg.Recording.Mode)).Msg("session initialized")
	return nil
}

// Hotkey returns the normalized hotkey registered by Initialize.
func (c *Controller) Hotkey() hotkey.Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec
}

// Start begins consuming hotkey and voice-activity events until ctx ends or
// Stop is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return ErrNotInitialized
	}
	if c.cancelRun != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.runCtx = runCtx
	c.cancelRun = cancel
	c.events = make(chan event, 16)
	c.loopDone = make(chan struct{})
	go c.loop(runCtx, c.events, c.loopDone)

	c.logger.Debug().Msg("session started")
	return nil
}

// Stop ends event processing. Any in-progress recording is discarded, any
// in-flight transcription or typing is cancelled, and state returns to idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancelRun
	done := c.loopDone
	c.cancelRun = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	// The loop may have opened a recording after cancel; read it only now.
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()

	if rec != nil {
		rec.cancel()
		if c.deps.Capture.IsRecording() {
			if _, err := c.deps.Capture.StopRecording(); err != nil {
				c.logger.Debug().Err(err).Msg("discard recording on stop")
			}
		}
	}
	c.pipelines.Wait()

	c.transition(fsm.EventReset, func(s fsm.State) bool { return s != fsm.StateIdle })
	hideCtx, hideCancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer hideCancel()
	c.deps.Indicator.Hide(hideCtx)
	c.logger.Debug().Msg("session stopped")
}

// Close stops the controller and releases the hotkey registration.
func (c *Controller) Close() {
	c.Stop()
	c.mu.Lock()
	ready := c.ready
	c.ready = false
	c.mu.Unlock()
	if ready {
		c.deps.Hotkey.Unregister()
	}
}

// State returns the current lifecycle state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ModelLoading moves an in-flight transcription between transcribing and
// loading_model while the model controller loads. It is a no-op in any other
// state.
func (c *Controller) ModelLoading(loading bool) {
	if loading {
		if c.transition(fsm.EventLoadModel, is(fsm.StateTranscribing)) {
			c.deps.Indicator.ShowLoading(context.Background())
		}
		return
	}
	if c.transition(fsm.EventModelLoaded, is(fsm.StateLoadingModel)) {
		c.deps.Indicator.ShowTranscribing(context.Background())
	}
}

// transition applies ev when guard accepts the current state and reports
// whether the state changed.
func (c *Controller) transition(ev fsm.Event, guard func(fsm.State) bool) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	old := c.state
	if guard != nil && !guard(old) {
		c.mu.Unlock()
		return false
	}
	next, err := fsm.Transition(old, ev)
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("rejected lifecycle transition")
		return false
	}
	c.state = next
	c.mu.Unlock()

	if old != next {
		c.logger.Debug().Str("from", string(old)).Str("to", string(next)).Msg("state changed")
		if c.deps.Observer.StateChanged != nil {
			c.deps.Observer.StateChanged(old, next)
		}
	}
	return true
}

func is(want fsm.State) func(fsm.State) bool {
	return func(s fsm.State) bool { return s == want }
}

// reportError surfaces an error to observers and the indicator.
func (c *Controller) reportError(message string, cause error) {
	ev := c.logger.Error()
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg(message)

	c.deps.Indicator.ShowError(context.Background(), message)
	if c.deps.Observer.ErrorOccurred != nil {
		c.deps.Observer.ErrorOccurred(message, cause)
	}
}
