package model

import (
	"context"
	"fmt"

	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/transcribe"
	"github.com/rs/zerolog"
)

// LocalBackend adapts a Manager to the transcribe.Backend contract. It loads
// the configured model on demand and, unless keepLoaded is set, unloads it
// after every call.
type LocalBackend struct {
	manager    *Manager
	modelID    string
	keepLoaded bool
	logger     zerolog.Logger
}

// NewLocalBackend builds a local backend for modelID.
func NewLocalBackend(manager *Manager, modelID string, keepLoaded bool, logger zerolog.Logger) *LocalBackend {
	return &LocalBackend{manager: manager, modelID: modelID, keepLoaded: keepLoaded, logger: logger}
}

// Transcribe ensures the model is resident, runs inference, and applies the
// keep-loaded policy. Load failures are returned as failed results.
func (b *LocalBackend) Transcribe(ctx context.Context, rec audio.Recording) transcribe.Result {
	if !b.manager.IsDownloaded(b.modelID) {
		return transcribe.Failedf("model %q is not downloaded; run `voxkey download %s`", b.modelID, b.modelID)
	}

	if err := b.manager.Load(ctx, b.modelID); err != nil {
		return transcribe.Failed(err)
	}
	if !b.keepLoaded {
		defer b.manager.Unload()
	}

	result, err := b.manager.Transcribe(ctx, rec)
	if err != nil {
		return transcribe.Failed(fmt.Errorf("model %q: %w", b.modelID, err))
	}
	return result
}

// Warm loads the configured model ahead of the first recording when it is
// downloaded and the keep-loaded policy is on.
func (b *LocalBackend) Warm(ctx context.Context) {
	if !b.keepLoaded || !b.manager.IsDownloaded(b.modelID) {
		return
	}
	if err := b.manager.Load(ctx, b.modelID); err != nil {
		b.logger.Warn().Err(err).Str("model", b.modelID).Msg("model warmup failed")
	}
}
