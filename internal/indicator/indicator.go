// Package indicator handles desktop notifications and audio cue playback for
// lifecycle changes.
package indicator

import (
	"context"
	"sync"
	"time"

	"github.com/rbright/voxkey/internal/config"
	"github.com/rs/zerolog"
)

// Controller is the session-facing indicator contract.
type Controller interface {
	ShowRecording(context.Context)
	ShowLoading(context.Context)
	ShowTranscribing(context.Context)
	ShowError(context.Context, string)
	CueComplete(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

// Desktop is the runtime indicator: freedesktop notifications plus synthesized
// PulseAudio cues.
type Desktop struct {
	cfg    config.IndicatorConfig
	logger zerolog.Logger

	notifyFn  func(ctx context.Context, appName string, replaceID uint32, n notification) (uint32, error)
	dismissFn func(ctx context.Context, id uint32) error
	cueFn     func(ctx context.Context, kind cueKind) error

	mu             sync.Mutex
	notificationID uint32
	soundMu        sync.Mutex
	cues           sync.WaitGroup
}

// NewDesktop creates an indicator controller from config.
func NewDesktop(cfg config.IndicatorConfig, logger zerolog.Logger) *Desktop {
	return &Desktop{
		cfg:       cfg,
		logger:    logger,
		notifyFn:  sendNotification,
		dismissFn: closeNotification,
		cueFn:     emitCue,
	}
}

// ShowRecording signals recording start and emits the start cue.
func (d *Desktop) ShowRecording(ctx context.Context) {
	d.playCue(cueStart)
	d.show(ctx, phaseRecording, "")
}

// ShowLoading signals that the transcription model is being loaded.
func (d *Desktop) ShowLoading(ctx context.Context) {
	d.show(ctx, phaseLoading, "")
}

// ShowTranscribing signals the post-capture transcription state.
func (d *Desktop) ShowTranscribing(ctx context.Context) {
	d.playCue(cueStop)
	d.show(ctx, phaseTranscribing, "")
}

// ShowError displays a transient error carrying text and plays the cancel cue.
func (d *Desktop) ShowError(ctx context.Context, text string) {
	d.playCue(cueCancel)
	d.show(ctx, phaseError, text)
}

// CueComplete emits the successful-commit cue.
func (d *Desktop) CueComplete(context.Context) {
	d.playCue(cueComplete)
}

// CueCancel emits the cancel cue.
func (d *Desktop) CueCancel(context.Context) {
	d.playCue(cueCancel)
}

// Hide dismisses the active notification.
func (d *Desktop) Hide(ctx context.Context) {
	if !d.cfg.NotifyEnable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		d.mu.Lock()
		id := d.notificationID
		d.notificationID = 0
		d.mu.Unlock()

		if id == 0 {
			return nil
		}
		return d.dismissFn(ctx, id)
	})
}

// Wait blocks until queued cues finish playing.
func (d *Desktop) Wait() {
	d.cues.Wait()
}

// show sends the notification for p, replacing the current one, and stores its ID.
func (d *Desktop) show(ctx context.Context, p phase, detail string) {
	if !d.cfg.NotifyEnable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		d.mu.Lock()
		replaceID := d.notificationID
		d.mu.Unlock()

		appName := d.cfg.AppName
		if appName == "" {
			appName = "voxkey"
		}
		id, err := d.notifyFn(ctx, appName, replaceID, notificationFor(p, detail, d.cfg.ErrorTimeoutMS))
		if err != nil {
			return err
		}

		d.mu.Lock()
		d.notificationID = id
		d.mu.Unlock()
		return nil
	})
}

// run executes an indicator operation with a bounded timeout.
func (d *Desktop) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		d.logger.Debug().Err(err).Msg("indicator dispatch failed")
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (d *Desktop) playCue(kind cueKind) {
	if !d.cfg.SoundEnable {
		return
	}
	d.cues.Add(1)
	go func() {
		defer d.cues.Done()
		d.soundMu.Lock()
		defer d.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := d.cueFn(ctx, kind); err != nil {
			d.logger.Debug().Err(err).Msg("indicator audio cue failed")
		}
	}()
}

// Nop is an indicator that does nothing.
type Nop struct{}

func (Nop) ShowRecording(context.Context)     {}
func (Nop) ShowLoading(context.Context)       {}
func (Nop) ShowTranscribing(context.Context)  {}
func (Nop) ShowError(context.Context, string) {}
func (Nop) CueComplete(context.Context)       {}
func (Nop) CueCancel(context.Context)         {}
func (Nop) Hide(context.Context)              {}
