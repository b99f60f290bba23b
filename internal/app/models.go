package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/config"
	"github.com/rbright/voxkey/internal/model"
	"github.com/rs/zerolog"
)

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s [%d] id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.Index,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

// newModelManager builds a manager over the configured model directory. The
// CLI commands never load models, so no loader is attached.
func newModelManager(cfg config.Config, logger zerolog.Logger, opts model.Options) (*model.Manager, error) {
	dir, err := config.ResolveModelDir(cfg.Transcription.Local)
	if err != nil {
		return nil, err
	}
	opts.Dir = dir
	opts.Logger = logger
	return model.NewManager(opts), nil
}

func (r Runner) commandModels(cfg config.Config, logger zerolog.Logger) int {
	manager, err := newModelManager(cfg, logger, model.Options{})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(r.Stdout, "models in %s\n", manager.Dir())
	for _, status := range manager.Models() {
		configured := " "
		if status.ID == cfg.Transcription.Local.Model {
			configured = "*"
		}
		state := "-"
		if status.Downloaded {
			state = "downloaded"
		}
		fmt.Fprintf(r.Stdout, "%s %-16s %6d MB  %-10s  %s\n", configured, status.ID, status.SizeMB, state, status.Description)
	}
	return 0
}

func (r Runner) commandDownload(ctx context.Context, cfg config.Config, id string, logger zerolog.Logger) int {
	manager, err := newModelManager(cfg, logger, model.Options{
		ProgressInterval: 500 * time.Millisecond,
		OnProgress:       r.printProgress,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if manager.IsDownloaded(id) {
		fmt.Fprintf(r.Stdout, "%s already downloaded at %s\n", id, manager.Path(id))
		return 0
	}
	if err := manager.Download(ctx, id); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(r.Stderr, "download cancelled")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "downloaded %s to %s\n", id, manager.Path(id))
	return 0
}

func (r Runner) printProgress(p model.Progress) {
	switch p.Phase {
	case model.PhaseConnecting:
		fmt.Fprintf(r.Stderr, "connecting for %s\n", p.ModelID)
	case model.PhaseComplete:
		fmt.Fprintf(r.Stderr, "%s: %d bytes\n", p.ModelID, p.BytesDone)
	default:
		if pct := p.Percent(); pct >= 0 {
			fmt.Fprintf(r.Stderr, "%s: %5.1f%%\n", p.ModelID, pct)
			return
		}
		fmt.Fprintf(r.Stderr, "%s: %d bytes\n", p.ModelID, p.BytesDone)
	}
}

func (r Runner) commandDelete(cfg config.Config, id string, logger zerolog.Logger) int {
	manager, err := newModelManager(cfg, logger, model.Options{})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if _, ok := manager.Lookup(id); !ok {
		fmt.Fprintf(r.Stderr, "error: %v: %q\n", model.ErrUnknownModel, id)
		return 1
	}
	if !manager.IsDownloaded(id) {
		fmt.Fprintf(r.Stdout, "%s is not downloaded\n", id)
		return 0
	}
	if err := manager.Delete(id); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "deleted %s\n", id)
	return 0
}
