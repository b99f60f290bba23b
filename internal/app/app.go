// Package app dispatches parsed voxkey commands and wires the daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rbright/voxkey/internal/cli"
	"github.com/rbright/voxkey/internal/config"
	"github.com/rbright/voxkey/internal/doctor"
	"github.com/rbright/voxkey/internal/ipc"
	"github.com/rbright/voxkey/internal/logging"
	"github.com/rbright/voxkey/internal/version"
	"github.com/rs/zerolog"
)

const binaryName = "voxkey"

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Logger overrides the file logger when set.
	Logger *zerolog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	var console io.Writer
	if parsed.Verbose {
		console = r.Stderr
	}
	logRuntime, err := logging.New("info", console)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := logRuntime.Logger
	if r.Logger != nil {
		logger = *r.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error().Err(err).Msg("load config failed")
		return 1
	}
	logger = logger.Level(logging.ParseLevel(cfgLoaded.Config.Log.Level))
	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn().Str("path", cfgLoaded.Path).Msg(w.Message)
	}

	logger.Info().
		Str("command", string(parsed.Command)).
		Str("config", cfgLoaded.Path).
		Str("log", logRuntime.Path).
		Msg("command start")

	switch parsed.Command {
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded, logger, logRuntime.Path)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandModels:
		return r.commandModels(cfgLoaded.Config, logger)
	case cli.CommandDownload:
		return r.commandDownload(ctx, cfgLoaded.Config, parsed.ModelID(), logger)
	case cli.CommandDelete:
		return r.commandDelete(cfgLoaded.Config, parsed.ModelID(), logger)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandToggle, cli.CommandPress, cli.CommandRelease, cli.CommandStop, cli.CommandCancel:
		return r.forwardOrFail(ctx, parsed.Command)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "stopped")
		return 0
	}

	resp, err := ipc.NewClient(socketPath).Status(ctx)
	if errors.Is(err, ipc.ErrNoDaemon) {
		fmt.Fprintln(r.Stdout, "stopped")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	if resp.State == "" {
		resp.State = "idle"
	}
	line := resp.State
	if resp.Mode != "" {
		line += " mode=" + resp.Mode
	}
	if resp.Model != "" {
		line += " model=" + resp.Model
	}
	fmt.Fprintln(r.Stdout, line)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command cli.Command) int {
	socketPath, err := ipc.SocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	client := ipc.NewClient(socketPath)
	send := map[cli.Command]func(context.Context) (ipc.Response, error){
		cli.CommandToggle:  client.Toggle,
		cli.CommandPress:   client.Press,
		cli.CommandRelease: client.Release,
		cli.CommandStop:    client.Stop,
		cli.CommandCancel:  client.Cancel,
	}[command]

	resp, err := send(ctx)
	if errors.Is(err, ipc.ErrNoDaemon) {
		fmt.Fprintf(r.Stderr, "error: no running voxkey daemon; start one with `voxkey run`\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}
