package session

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/config"
	"github.com/rbright/voxkey/internal/fsm"
	"github.com/rbright/voxkey/internal/ipc"
	"github.com/rbright/voxkey/internal/transcribe"
	"github.com/stretchr/testify/require"
)

func TestInitializeRegistersNormalizedHotkey(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.config.cfg.Hotkey = "Space+Shift+Ctrl"

	require.NoError(t, h.ctrl.Initialize(context.Background()))
	require.Len(t, h.hotkey.registered, 1)
	require.Equal(t, "ctrl+shift+space", h.hotkey.registered[0].String())
	require.Equal(t, "ctrl+shift+space", h.ctrl.Hotkey().String())
}

func TestInitializeConfigurationFailures(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.config.err = errors.New("disk on fire")

	err := h.ctrl.Initialize(context.Background())
	var cfgErr *config.Error
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, err.Error(), "disk on fire")

	h.config.err = nil
	h.config.cfg.Hotkey = "ctrl+shift"
	err = h.ctrl.Initialize(context.Background())
	require.ErrorAs(t, err, &cfgErr)
	require.Empty(t, h.hotkey.registered)

	require.ErrorIs(t, h.ctrl.Start(context.Background()), ErrNotInitialized)
}

func TestPressWhileIdleStartsRecordingForEveryPolicy(t *testing.T) {
	for _, mode := range []config.Mode{config.ModeContinuous, config.ModeVAD, config.ModeToggle, config.ModeHold} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t, mode)
			h.start(t)

			h.press()
			h.waitState(t, fsm.StateRecording)
			require.Equal(t, int32(1), h.indicator.recording.Load())

			if mode == config.ModeHold {
				// A repeated press in hold mode never opens a second session.
				h.press()
				time.Sleep(20 * time.Millisecond)
				require.Equal(t, fsm.StateRecording, h.ctrl.State())
			}
			starts, _ := h.capture.counts()
			require.Equal(t, 1, starts)
		})
	}
}

func TestToggleEndToEnd(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)

	h.press()
	h.waitStateLog(t,
		fsm.StateRecording,
		fsm.StateTranscribing,
		fsm.StateTyping,
		fsm.StateIdle,
	)

	done := h.events.completed()[0]
	require.Equal(t, "Hello World ", done.text)
	require.True(t, done.result.Success)
	require.Equal(t, []string{"Hello World "}, h.typer.typed())
	require.Equal(t, int32(1), h.indicator.completes.Load())
	require.Empty(t, h.events.reported())
}

func TestContinuousTooShortRecordingRestartsWithoutTranscribing(t *testing.T) {
	h := newHarness(t, config.ModeContinuous)
	h.capture.setDuration(50 * time.Millisecond)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)

	h.speakThenSilence()
	h.waitStateLog(t,
		fsm.StateRecording,
		fsm.StateTranscribing,
		fsm.StateIdle,
		fsm.StateRecording,
	)
	h.waitStarts(t, 2)

	require.Zero(t, h.backend.calls.Load())
	require.Empty(t, h.typer.typed())
}

func TestContinuousRestartsAfterSuccessfulCycle(t *testing.T) {
	h := newHarness(t, config.ModeContinuous)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)

	h.speakThenSilence()
	h.waitStarts(t, 2)
	h.waitState(t, fsm.StateRecording)

	require.Equal(t, int32(1), h.backend.calls.Load())
	require.Equal(t, []string{"Hello World "}, h.typer.typed())
	// Relistening does not replay the start indicator.
	require.Equal(t, int32(1), h.indicator.recording.Load())

	h.speakThenSilence()
	h.waitStarts(t, 3)
	require.Eventually(t, func() bool { return len(h.typer.typed()) == 2 }, time.Second, 2*time.Millisecond)
}

func TestContinuousDoesNotRestartAfterCancellation(t *testing.T) {
	h := newHarness(t, config.ModeContinuous)
	h.backend.block = make(chan struct{})
	h.backend.started = make(chan struct{}, 1)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.speakThenSilence()
	<-h.backend.started

	h.ctrl.Stop()
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	starts, _ := h.capture.counts()
	require.Equal(t, 1, starts)
	require.Empty(t, h.events.reported())
	require.Empty(t, h.typer.typed())
}

func TestContinuousRelistenStopsWhenPolicyChanges(t *testing.T) {
	h := newHarness(t, config.ModeContinuous)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.config.setMode(config.ModeToggle)

	h.speakThenSilence()
	require.Eventually(t, func() bool { return len(h.typer.typed()) == 1 }, time.Second, 2*time.Millisecond)
	h.waitState(t, fsm.StateIdle)
	time.Sleep(20 * time.Millisecond)

	starts, _ := h.capture.counts()
	require.Equal(t, 1, starts)
}

func TestVADSilenceTriggersExactlyOneStop(t *testing.T) {
	h := newHarness(t, config.ModeVAD)
	h.backend.block = make(chan struct{})
	h.backend.started = make(chan struct{}, 1)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	gen := h.mustGen(t)

	h.speakThenSilence()
	<-h.backend.started
	require.Equal(t, fsm.StateTranscribing, h.ctrl.State())

	// A late silence tick for the same recording has no effect.
	h.ctrl.onVoiceActivity(event{kind: eventVoice, gen: gen})
	_, stops := h.capture.counts()
	require.Equal(t, 1, stops)
	require.Equal(t, int32(1), h.backend.calls.Load())

	close(h.backend.block)
	h.waitState(t, fsm.StateIdle)
	time.Sleep(20 * time.Millisecond)
	starts, _ := h.capture.counts()
	require.Equal(t, 1, starts)
	require.Equal(t, []string{"Hello World "}, h.typer.typed())
}

func TestVADIgnoresSilenceBeforeSpeech(t *testing.T) {
	h := newHarness(t, config.ModeVAD)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.capture.send(quietChunk())
	h.capture.send(quietChunk())
	h.capture.send(quietChunk())
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, fsm.StateRecording, h.ctrl.State())
	require.Zero(t, h.backend.calls.Load())
}

func TestToggleIgnoresVoiceActivity(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.ctrl.onVoiceActivity(event{kind: eventVoice, gen: h.mustGen(t)})

	require.Equal(t, fsm.StateRecording, h.ctrl.State())
}

func TestHoldReleaseBeforeMinimumDiscardsAudio(t *testing.T) {
	h := newHarness(t, config.ModeHold)
	h.capture.setDuration(40 * time.Millisecond)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.release()

	h.waitStateLog(t, fsm.StateRecording, fsm.StateTranscribing, fsm.StateIdle)
	require.Zero(t, h.backend.calls.Load())
	require.Empty(t, h.typer.typed())
	require.Empty(t, h.events.completed())
	_, stops := h.capture.counts()
	require.Equal(t, 1, stops)
}

func TestHoldReleaseTranscribes(t *testing.T) {
	h := newHarness(t, config.ModeHold)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.release()

	require.Eventually(t, func() bool { return len(h.events.completed()) == 1 }, time.Second, 2*time.Millisecond)
	h.waitState(t, fsm.StateIdle)
}

func TestPolicyIsCapturedAtRecordingStart(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.config.setMode(config.ModeHold)

	// The recording started under toggle, so a press still stops it.
	h.press()
	require.Eventually(t, func() bool { return len(h.events.completed()) == 1 }, time.Second, 2*time.Millisecond)
}

func TestFailedResultReportsErrorWithoutTyping(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.backend.result = transcribe.Failedf("hosted API returned 401")
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.press()

	require.Eventually(t, func() bool { return len(h.events.reported()) == 1 }, time.Second, 2*time.Millisecond)
	h.waitState(t, fsm.StateIdle)
	require.Equal(t, "hosted API returned 401", h.events.reported()[0].message)
	require.Empty(t, h.typer.typed())
	require.Empty(t, h.events.completed())
	require.Equal(t, int32(1), h.indicator.errors.Load())
}

func TestBlankResultIsSilentNoop(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.backend.result = transcribe.Succeeded("  \n ", "en", 0)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.press()

	h.waitStateLog(t, fsm.StateRecording, fsm.StateTranscribing, fsm.StateIdle)
	require.Equal(t, int32(1), h.backend.calls.Load())
	require.Empty(t, h.typer.typed())
	require.Empty(t, h.events.completed())
	require.Empty(t, h.events.reported())
}

func TestTypingFailureIsReported(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.typer.err = errors.New("uinput unavailable")
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.press()

	require.Eventually(t, func() bool { return len(h.events.reported()) == 1 }, time.Second, 2*time.Millisecond)
	require.Equal(t, "typing failed", h.events.reported()[0].message)
	h.waitState(t, fsm.StateIdle)
}

func TestPressWhileTranscribingIsIgnored(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.backend.block = make(chan struct{})
	h.backend.started = make(chan struct{}, 1)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.press()
	<-h.backend.started

	h.press()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, fsm.StateTranscribing, h.ctrl.State())
	starts, _ := h.capture.counts()
	require.Equal(t, 1, starts)

	close(h.backend.block)
	h.waitState(t, fsm.StateIdle)
}

func TestStopCancelsInFlightTranscriptionQuietly(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.backend.block = make(chan struct{})
	h.backend.started = make(chan struct{}, 1)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.press()
	<-h.backend.started

	h.ctrl.Stop()
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	require.Empty(t, h.events.reported())
	require.Empty(t, h.typer.typed())
	require.Empty(t, h.events.completed())
}

func TestStopDiscardsActiveRecording(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)

	h.ctrl.Stop()
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	require.False(t, h.capture.IsRecording())
	require.Zero(t, h.backend.calls.Load())
	require.ErrorIs(t, h.ctrl.Press(), ErrNotRunning)
}

func TestCaptureFaultForcesIdle(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.capture.fail(errors.New("device unplugged"))

	require.Eventually(t, func() bool { return len(h.events.reported()) == 1 }, time.Second, 2*time.Millisecond)
	h.waitState(t, fsm.StateIdle)

	reported := h.events.reported()[0]
	var captureErr *audio.CaptureError
	require.ErrorAs(t, reported.cause, &captureErr)
	require.Zero(t, h.backend.calls.Load())

	// The controller accepts a fresh activation afterwards.
	h.press()
	h.waitState(t, fsm.StateRecording)
}

func TestCaptureStartFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.capture.startErr = &audio.CaptureError{Op: "open stream", Err: errors.New("no source")}
	h.start(t)

	h.press()
	require.Eventually(t, func() bool { return len(h.events.reported()) == 1 }, time.Second, 2*time.Millisecond)
	h.waitStateLog(t, fsm.StateRecording, fsm.StateIdle)
}

func TestModelLoadingMovesThroughLoadingState(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.backend.hook = func() {
		h.ctrl.ModelLoading(true)
		h.ctrl.ModelLoading(false)
	}
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.press()

	h.waitStateLog(t,
		fsm.StateRecording,
		fsm.StateTranscribing,
		fsm.StateLoadingModel,
		fsm.StateTranscribing,
		fsm.StateTyping,
		fsm.StateIdle,
	)
	require.Len(t, h.events.completed(), 1)
	require.Equal(t, int32(1), h.indicator.loading.Load())
}

func TestModelLoadingOutsideTranscriptionIsIgnored(t *testing.T) {
	h := newHarness(t, config.ModeToggle)

	h.ctrl.ModelLoading(true)
	h.ctrl.ModelLoading(false)
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	require.Empty(t, h.events.stateLog())
}

func TestAudioDumpReceivesRecording(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.config.cfg.Debug.AudioDump = true
	dumped := make(chan audio.Recording, 1)
	h.ctrl.deps.Dump = func(rec audio.Recording) { dumped <- rec }
	h.start(t)

	h.press()
	h.waitState(t, fsm.StateRecording)
	h.press()

	select {
	case rec := <-dumped:
		require.Equal(t, "rec", rec.ID)
	case <-time.After(time.Second):
		t.Fatal("recording was not dumped")
	}
}

func TestHandleCommands(t *testing.T) {
	h := newHarness(t, config.ModeToggle)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandToggle})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, ErrNotRunning.Error())

	h.start(t)

	status := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)
	require.Equal(t, string(config.ModeToggle), status.Mode)

	stop := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.False(t, stop.OK)
	require.Contains(t, stop.Error, "cannot stop from state idle")

	unknown := h.ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")

	toggle := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandToggle})
	require.True(t, toggle.OK)
	h.waitState(t, fsm.StateRecording)

	stop = h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.True(t, stop.OK)
	require.Eventually(t, func() bool { return len(h.events.completed()) == 1 }, time.Second, 2*time.Millisecond)
}

func TestHandleCancelDiscardsRecording(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.start(t)

	require.NoError(t, h.ctrl.Press())
	h.waitState(t, fsm.StateRecording)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandCancel})
	require.True(t, resp.OK)
	require.Eventually(t, func() bool { return h.indicator.cancels.Load() == 1 }, time.Second, 2*time.Millisecond)
	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	require.Zero(t, h.backend.calls.Load())
}

func TestToggleCommandDrivesHoldMode(t *testing.T) {
	h := newHarness(t, config.ModeHold)
	h.start(t)

	require.NoError(t, h.ctrl.Toggle())
	h.waitState(t, fsm.StateRecording)
	require.NoError(t, h.ctrl.Toggle())

	require.Eventually(t, func() bool { return len(h.events.completed()) == 1 }, time.Second, 2*time.Millisecond)
}

func TestHoldTapQueuedWhileBusyClosesRecording(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t, config.ModeHold)
		require.NoError(t, h.ctrl.Initialize(context.Background()))

		// Both edges are queued before the loop runs, so they are read back to back.
		h.press()
		h.release()
		require.NoError(t, h.ctrl.Start(context.Background()))

		require.Eventually(t, func() bool { return len(h.events.completed()) == 1 }, time.Second, 2*time.Millisecond, "run %d", i)
		h.waitState(t, fsm.StateIdle)
		require.False(t, h.capture.IsRecording(), "run %d", i)
		h.ctrl.Close()
	}
}

func TestStopDiscardsRecordingOpenedDuringShutdown(t *testing.T) {
	h := newHarness(t, config.ModeToggle)
	h.capture.startGate = make(chan struct{})
	h.capture.startEntered = make(chan struct{}, 1)
	h.start(t)

	h.press()
	select {
	case <-h.capture.startEntered:
	case <-time.After(time.Second):
		t.Fatal("capture start not reached")
	}

	stopped := make(chan struct{})
	go func() {
		h.ctrl.Stop()
		close(stopped)
	}()
	// Let Stop cancel the loop while the recording is still opening.
	require.Eventually(t, func() bool {
		h.ctrl.mu.Lock()
		defer h.ctrl.mu.Unlock()
		return h.ctrl.cancelRun == nil
	}, time.Second, time.Millisecond)
	close(h.capture.startGate)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}

	require.Equal(t, fsm.StateIdle, h.ctrl.State())
	h.ctrl.mu.Lock()
	require.Nil(t, h.ctrl.rec)
	h.ctrl.mu.Unlock()
	require.False(t, h.capture.IsRecording())
	_, stops := h.capture.counts()
	require.Equal(t, 1, stops)
}

func (h *harness) waitStateLog(t *testing.T, want ...fsm.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return slices.Equal(h.events.stateLog(), want)
	}, 2*time.Second, 2*time.Millisecond, "states %v, want %v", h.events.stateLog(), want)
}

func (h *harness) mustGen(t *testing.T) uint64 {
	t.Helper()
	h.ctrl.mu.Lock()
	defer h.ctrl.mu.Unlock()
	require.NotNil(t, h.ctrl.rec)
	return h.ctrl.rec.gen
}
