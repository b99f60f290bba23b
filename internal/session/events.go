package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rbright/voxkey/internal/config"
	"github.com/rbright/voxkey/internal/fsm"
	"github.com/rbright/voxkey/internal/ipc"
)

type eventKind int

const (
	eventPressed eventKind = iota + 1
	eventReleased
	eventToggle
	eventStop
	eventCancel
	eventVoice
	eventCaptureClosed
	eventRestart
)

func (k eventKind) String() string {
	switch k {
	case eventPressed:
		return "pressed"
	case eventReleased:
		return "released"
	case eventToggle:
		return "toggle"
	case eventStop:
		return "stop"
	case eventCancel:
		return "cancel"
	case eventVoice:
		return "voice"
	case eventCaptureClosed:
		return "capture_closed"
	case eventRestart:
		return "restart"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// event is one message for the controller loop. gen ties capture-originated
// events to the recording that produced them.
type event struct {
	kind     eventKind
	gen      uint64
	speaking bool
	silence  time.Duration
}

// loop is the single consumer of activation, voice-activity, and restart events.
func (c *Controller) loop(ctx context.Context, events <-chan event, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case hk := <-c.deps.Hotkey.Events():
			if hk.Pressed {
				c.dispatch(ctx, event{kind: eventPressed})
			} else {
				c.dispatch(ctx, event{kind: eventReleased})
			}
		case ev := <-events:
			c.dispatch(ctx, ev)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, ev event) {
	switch ev.kind {
	case eventPressed:
		c.onPressed(ctx)
	case eventReleased:
		c.onReleased()
	case eventToggle:
		c.onToggle(ctx)
	case eventStop:
		c.stopAndTranscribe(false)
	case eventCancel:
		c.cancelRecording()
	case eventVoice:
		c.onVoiceActivity(ev)
	case eventCaptureClosed:
		c.onCaptureClosed(ev)
	case eventRestart:
		c.onRestart(ctx)
	}
}

func (c *Controller) onPressed(ctx context.Context) {
	switch state, rec := c.snapshot(); state {
	case fsm.StateIdle:
		c.startRecording(ctx, false)
	case fsm.StateRecording:
		if rec != nil && rec.mode != config.ModeHold {
			c.stopAndTranscribe(false)
		}
	default:
		c.logger.Debug().Str("state", string(state)).Msg("activation ignored while busy")
	}
}

func (c *Controller) onReleased() {
	state, rec := c.snapshot()
	if state == fsm.StateRecording && rec != nil && rec.mode == config.ModeHold {
		c.stopAndTranscribe(false)
	}
}

// onToggle lets one command drive every policy: in hold mode it acts as press
// when idle and release when recording.
func (c *Controller) onToggle(ctx context.Context) {
	state, rec := c.snapshot()
	if state == fsm.StateRecording && rec != nil && rec.mode == config.ModeHold {
		c.stopAndTranscribe(false)
		return
	}
	c.onPressed(ctx)
}

func (c *Controller) onVoiceActivity(ev event) {
	state, rec := c.snapshot()
	if state != fsm.StateRecording || rec == nil || rec.gen != ev.gen {
		return
	}
	if ev.speaking {
		c.logger.Debug().Msg("speech detected")
		return
	}

	c.logger.Debug().Dur("silence", ev.silence).Msg("sustained silence detected")
	switch rec.mode {
	case config.ModeContinuous:
		c.stopAndTranscribe(true)
	case config.ModeVAD:
		c.stopAndTranscribe(false)
	}
}

// onCaptureClosed handles a capture stream that ended while still recording,
// which only happens on a capture fault.
func (c *Controller) onCaptureClosed(ev event) {
	c.mu.Lock()
	rec := c.rec
	if c.state != fsm.StateRecording || rec == nil || rec.gen != ev.gen {
		c.mu.Unlock()
		return
	}
	c.rec = nil
	c.mu.Unlock()

	rec.cancel()
	cause := c.deps.Capture.Err()
	if cause == nil {
		cause = fmt.Errorf("capture stream closed unexpectedly")
	}
	if c.deps.Capture.IsRecording() {
		_, _ = c.deps.Capture.StopRecording()
	}
	c.transition(fsm.EventReset, nil)
	c.reportError("audio capture failed", cause)
}

func (c *Controller) onRestart(ctx context.Context) {
	if c.State() != fsm.StateIdle {
		return
	}
	c.startRecording(ctx, true)
}

func (c *Controller) snapshot() (fsm.State, *recording) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.rec
}

// post submits an internal event without blocking past controller shutdown.
func (c *Controller) post(ctx context.Context, events chan<- event, ev event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// submit queues an external command for the running loop.
func (c *Controller) submit(kind eventKind) error {
	c.mu.Lock()
	events := c.events
	running := c.cancelRun != nil
	c.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	select {
	case events <- event{kind: kind}:
		return nil
	default:
		return fmt.Errorf("session busy: %s dropped", kind)
	}
}

// Press submits an activation pressed event.
func (c *Controller) Press() error { return c.submit(eventPressed) }

// Release submits an activation released event.
func (c *Controller) Release() error { return c.submit(eventReleased) }

// Toggle submits a press in toggle-style policies, or the matching press or
// release in hold mode.
func (c *Controller) Toggle() error { return c.submit(eventToggle) }

// Handle serves control socket commands.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	state := c.State()
	resp := ipc.Response{State: string(state)}
	if cfg, err := c.deps.Config.Current(); err == nil {
		resp.Mode = string(cfg.Recording.Mode)
	}

	var err error
	switch req.Command {
	case ipc.CommandStatus:
		resp.OK = true
		resp.Message = "status"
		return resp
	case ipc.CommandToggle:
		err = c.Toggle()
	case ipc.CommandPress:
		err = c.Press()
	case ipc.CommandRelease:
		err = c.Release()
	case ipc.CommandStop, ipc.CommandCancel:
		if state.Busy() {
			resp.Error = "already transcribing"
			return resp
		}
		if state != fsm.StateRecording {
			resp.Error = fmt.Sprintf("cannot %s from state %s", req.Command, state)
			return resp
		}
		if req.Command == ipc.CommandStop {
			err = c.submit(eventStop)
		} else {
			err = c.submit(eventCancel)
		}
	default:
		resp.Error = fmt.Sprintf("unknown command: %s", req.Command)
		return resp
	}

	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.OK = true
	resp.Message = string(req.Command) + " requested"
	return resp
}
