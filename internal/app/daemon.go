package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/config"
	"github.com/rbright/voxkey/internal/encoder"
	"github.com/rbright/voxkey/internal/hotkey"
	"github.com/rbright/voxkey/internal/indicator"
	"github.com/rbright/voxkey/internal/ipc"
	"github.com/rbright/voxkey/internal/model"
	"github.com/rbright/voxkey/internal/session"
	"github.com/rbright/voxkey/internal/transcribe"
	"github.com/rbright/voxkey/internal/typing"
	"github.com/rbright/voxkey/internal/whisper"
	"github.com/rs/zerolog"
)

// daemon is the set of long-lived collaborators behind `voxkey run`.
type daemon struct {
	store     *config.Store
	ctrl      *session.Controller
	remote    *hotkey.Remote
	manager   *model.Manager
	local     *model.LocalBackend
	indicator *indicator.Desktop
	logger    zerolog.Logger
}

func (r Runner) commandRun(ctx context.Context, loaded config.Loaded, logger zerolog.Logger, logPath string) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	d, err := newDaemon(loaded, logger, r.Stdout, filepath.Join(filepath.Dir(logPath), "recordings"))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error().Err(err).Msg("daemon setup failed")
		return 1
	}
	defer d.close()

	if err := d.ctrl.Initialize(ctx); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error().Err(err).Msg("session initialize failed")
		return 1
	}
	defer d.ctrl.Close()
	if err := d.ctrl.Start(ctx); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	d.store.Watch()
	if d.local != nil {
		go d.local.Warm(ctx)
	}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, d, logger)
	}()

	fmt.Fprintf(r.Stdout, "voxkey listening: hotkey %s, socket %s\n", d.ctrl.Hotkey(), socketPath)
	logger.Info().Str("hotkey", d.ctrl.Hotkey().String()).Str("socket", socketPath).Msg("daemon ready")

	var serverErr error
	select {
	case <-ctx.Done():
		serverCancel()
		serverErr = <-serverErrCh
	case serverErr = <-serverErrCh:
	}
	if serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logger.Info().Msg("daemon stopped")
	return 0
}

// newDaemon builds every collaborator from the loaded configuration.
func newDaemon(loaded config.Loaded, logger zerolog.Logger, echo io.Writer, dumpDir string) (*daemon, error) {
	cfg := loaded.Config
	d := &daemon{
		store:     config.NewStore(loaded, logger),
		remote:    hotkey.NewRemote(),
		indicator: indicator.NewDesktop(cfg.Indicator, logger),
		logger:    logger,
	}

	typer, err := typing.New(cfg.Output.Method, logger)
	if err != nil {
		return nil, &config.Error{Path: loaded.Path, Err: err}
	}

	backend, err := d.newBackend(cfg)
	if err != nil {
		return nil, err
	}

	listener := hotkey.Merge(hotkey.NewGlobal(logger), d.remote)
	listener.OnError = func(err error) {
		logger.Warn().Err(err).Msg("global hotkey unavailable; bind `voxkey press`/`voxkey release` in your compositor")
	}

	d.ctrl = session.NewController(session.Deps{
		Config:    d.store,
		Capture:   audio.NewRecorder(cfg.Audio.Input, cfg.Audio.Fallback, logger),
		Hotkey:    listener,
		Backend:   backend,
		Typer:     typer,
		Indicator: d.indicator,
		Echo:      echo,
		Dump:      recordingDumper(dumpDir, logger),
		Logger:    logger,
	})
	return d, nil
}

// newBackend selects the hosted API or the local model manager.
func (d *daemon) newBackend(cfg config.Config) (transcribe.Backend, error) {
	tc := cfg.Transcription
	if tc.Backend == "hosted" {
		return transcribe.NewHosted(transcribe.HostedConfig{
			URL:        tc.Hosted.URL,
			APIKey:     tc.Hosted.APIKey,
			Model:      tc.Hosted.Model,
			Format:     tc.Hosted.Format,
			Language:   tc.Language,
			Timeout:    time.Duration(tc.Hosted.TimeoutMS) * time.Millisecond,
			MaxRetries: tc.Hosted.MaxRetries,
		}, d.logger), nil
	}

	dir, err := config.ResolveModelDir(tc.Local)
	if err != nil {
		return nil, err
	}
	argv, err := tc.Local.ServerArgv()
	if err != nil {
		return nil, &config.Error{Err: fmt.Errorf("transcription.local.server_cmd: %w", err)}
	}

	d.manager = model.NewManager(model.Options{
		Dir: dir,
		Loader: whisper.Loader(whisper.Config{
			Command:        argv,
			Host:           tc.Local.Host,
			Port:           tc.Local.Port,
			Language:       tc.Language,
			StartupTimeout: time.Duration(tc.Local.StartupTimeoutMS) * time.Millisecond,
		}, d.logger),
		Logger: d.logger,
		OnLoading: func(ev model.LoadingEvent) {
			if d.ctrl != nil {
				d.ctrl.ModelLoading(ev.Loading)
			}
		},
	})
	d.local = model.NewLocalBackend(d.manager, tc.Local.Model, tc.Local.KeepLoaded, d.logger)
	return d.local, nil
}

// Handle serves socket commands. press and release feed the remote hotkey
// listener; everything else goes to the controller.
func (d *daemon) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	var resp ipc.Response
	switch req.Command {
	case ipc.CommandPress, ipc.CommandRelease:
		inject := d.remote.Press
		if req.Command == ipc.CommandRelease {
			inject = d.remote.Release
		}
		if inject() {
			resp = ipc.Response{OK: true, State: string(d.ctrl.State()), Message: string(req.Command) + " requested"}
		} else {
			resp = d.ctrl.Handle(ctx, req)
		}
	default:
		resp = d.ctrl.Handle(ctx, req)
	}
	if d.manager != nil {
		resp.Model = d.manager.State().LoadedModelID
	}
	return resp
}

func (d *daemon) close() {
	if d.manager != nil {
		d.manager.Close()
	}
	d.indicator.Wait()
}

// recordingDumper writes each recording as WAV under dir for debugging.
func recordingDumper(dir string, logger zerolog.Logger) func(audio.Recording) {
	return func(rec audio.Recording) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("create recording dump dir failed")
			return
		}
		path := filepath.Join(dir, rec.ID+".wav")
		if err := encoder.WriteWAVFile(path, rec); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("write recording dump failed")
			return
		}
		logger.Debug().Str("path", path).Msg("recording dumped")
	}
}
