package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/config"
	"github.com/rbright/voxkey/internal/fsm"
	"github.com/rbright/voxkey/internal/transcript"
	"github.com/rbright/voxkey/internal/vad"
)

var echoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))

// startRecording reads the current policy and begins capture. restart marks
// a continuous-mode relisten, which only proceeds while the policy is still
// continuous.
func (c *Controller) startRecording(ctx context.Context, restart bool) {
	cfg, err := c.deps.Config.Current()
	if err != nil {
		c.reportError("configuration unavailable", err)
		return
	}
	mode := cfg.Recording.Mode
	if restart && mode != config.ModeContinuous {
		c.logger.Debug().Str("mode", string(mode)).Msg("policy changed; not relistening")
		return
	}

	if !c.transition(fsm.EventStart, is(fsm.StateIdle)) {
		return
	}

	recCtx, cancel := context.WithCancel(ctx)
	chunks, err := c.deps.Capture.StartRecording(recCtx, cfg.Recording.DeviceIndex)
	if err != nil {
		cancel()
		c.transition(fsm.EventReset, nil)
		c.reportError("audio capture failed", err)
		return
	}

	c.mu.Lock()
	c.gen++
	rec := &recording{gen: c.gen, mode: mode, cfg: cfg, ctx: recCtx, cancel: cancel}
	c.rec = rec
	events := c.events
	c.mu.Unlock()

	go c.watchCapture(ctx, events, rec, chunks)

	if !restart {
		c.deps.Indicator.ShowRecording(ctx)
	}
	c.logger.Info().Str("mode", string(mode)).Bool("restart", restart).Msg("recording started")
}

// watchCapture drains capture chunks, feeds the voice-activity tracker in
// silence-aware policies, and reports when the stream ends.
func (c *Controller) watchCapture(ctx context.Context, events chan<- event, rec *recording, chunks <-chan []byte) {
	var tracker *vad.Tracker
	if rec.mode.UsesVoiceActivity() {
		tracker = vad.NewTracker(rec.cfg.VAD.EnergyThreshold, time.Duration(rec.cfg.VAD.SilenceMS)*time.Millisecond)
		tracker.Reset()
	}

	for chunk := range chunks {
		if tracker == nil {
			continue
		}
		if tr, ok := tracker.Process(chunk, c.now()); ok {
			c.post(ctx, events, event{kind: eventVoice, gen: rec.gen, speaking: tr.Speaking, silence: tr.Silence})
		}
	}
	c.post(ctx, events, event{kind: eventCaptureClosed, gen: rec.gen})
}

// stopAndTranscribe ends the active recording and hands it to a pipeline
// goroutine. The recording check and the move to transcribing happen under
// one transition, so concurrent triggers act at most once.
func (c *Controller) stopAndTranscribe(restart bool) {
	var rec *recording
	ok := c.transition(fsm.EventStop, func(s fsm.State) bool {
		if s != fsm.StateRecording || c.rec == nil {
			return false
		}
		rec = c.rec
		c.rec = nil
		return true
	})
	if !ok {
		return
	}

	captured, err := c.deps.Capture.StopRecording()
	if err != nil {
		rec.cancel()
		c.transition(fsm.EventReset, nil)
		c.reportError("audio capture failed", err)
		return
	}

	c.pipelines.Add(1)
	go c.runPipeline(rec, captured, restart)
}

// cancelRecording discards the active recording without transcribing.
func (c *Controller) cancelRecording() {
	var rec *recording
	ok := c.transition(fsm.EventCancel, func(s fsm.State) bool {
		if s != fsm.StateRecording || c.rec == nil {
			return false
		}
		rec = c.rec
		c.rec = nil
		return true
	})
	if !ok {
		return
	}
	rec.cancel()
	if _, err := c.deps.Capture.StopRecording(); err != nil {
		c.logger.Debug().Err(err).Msg("discard cancelled recording")
	}
	c.deps.Indicator.CueCancel(context.Background())
	c.deps.Indicator.Hide(context.Background())
	c.logger.Info().Msg("recording cancelled")
}

// runPipeline transcribes, post-processes, and types one recording, then
// returns the lifecycle to idle and relistens when restart was requested.
func (c *Controller) runPipeline(rec *recording, captured audio.Recording, restart bool) {
	defer c.pipelines.Done()

	cancelled := c.process(rec, captured)

	rec.cancel()
	c.transition(fsm.EventFinish, func(s fsm.State) bool { return s.Busy() })
	if !cancelled {
		c.deps.Indicator.Hide(context.Background())
	}

	if restart && !cancelled {
		c.mu.Lock()
		runCtx, events := c.runCtx, c.events
		running := c.cancelRun != nil
		c.mu.Unlock()
		if running {
			c.post(runCtx, events, event{kind: eventRestart})
		}
	}
}

// process runs steps after capture stops and reports whether the recording's
// context was cancelled along the way.
func (c *Controller) process(rec *recording, captured audio.Recording) bool {
	ctx := rec.ctx
	cfg := rec.cfg
	logger := c.logger.With().Str("recording_id", captured.ID).Logger()

	if cfg.Debug.AudioDump && c.deps.Dump != nil {
		c.deps.Dump(captured)
	}

	minDuration := time.Duration(cfg.Recording.MinDurationMS) * time.Millisecond
	if captured.Duration() < minDuration {
		logger.Info().Dur("duration", captured.Duration()).Dur("min", minDuration).Msg("recording too short; discarded")
		return false
	}

	c.deps.Indicator.ShowTranscribing(ctx)
	started := time.Now()
	result := c.deps.Backend.Transcribe(ctx, captured)
	if ctx.Err() != nil {
		logger.Info().Msg("transcription cancelled")
		return true
	}
	if !result.Success {
		c.reportError(result.Error, nil)
		return false
	}
	if result.Blank() {
		logger.Info().Dur("elapsed", time.Since(started)).Msg("no speech recognized")
		return false
	}

	text := transcript.Process(result.Text, transcript.Options{
		RemoveTrailingPeriod: cfg.Transcript.RemoveTrailingPeriod,
		Lowercase:            cfg.Transcript.Lowercase,
		TrailingSpace:        cfg.Transcript.TrailingSpace,
		CapitalizeSentences:  cfg.Transcript.CapitalizeSentences,
	})
	if text == "" {
		logger.Info().Msg("transcript empty after post-processing")
		return false
	}

	if cfg.Output.Echo && c.deps.Echo != nil {
		_, _ = fmt.Fprintln(c.deps.Echo, echoStyle.Render(text))
	}

	if !c.transition(fsm.EventType, is(fsm.StateTranscribing)) {
		if ctx.Err() != nil {
			return true
		}
		logger.Warn().Str("state", string(c.State())).Msg("cannot enter typing state")
		return false
	}

	delay := time.Duration(cfg.Output.TypingDelayMS) * time.Millisecond
	if err := c.deps.Typer.TypeText(ctx, text, delay); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			logger.Info().Msg("typing cancelled")
			return true
		}
		c.reportError("typing failed", err)
		return false
	}

	if cfg.Output.Sound {
		c.deps.Indicator.CueComplete(ctx)
	}
	logger.Info().
		Int("chars", len(text)).
		Str("language", result.Language).
		Dur("elapsed", time.Since(started)).
		Msg("transcription completed")
	if c.deps.Observer.TranscriptionCompleted != nil {
		c.deps.Observer.TranscriptionCompleted(text, result)
	}
	return false
}
