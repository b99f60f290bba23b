// Package cli parses voxkey command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun      Command = "run"
	CommandToggle   Command = "toggle"
	CommandPress    Command = "press"
	CommandRelease  Command = "release"
	CommandStop     Command = "stop"
	CommandCancel   Command = "cancel"
	CommandStatus   Command = "status"
	CommandDevices  Command = "devices"
	CommandModels   Command = "models"
	CommandDownload Command = "download"
	CommandDelete   Command = "delete"
	CommandDoctor   Command = "doctor"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

// commandArity is the number of positional arguments each command takes.
var commandArity = map[Command]int{
	CommandRun:      0,
	CommandToggle:   0,
	CommandPress:    0,
	CommandRelease:  0,
	CommandStop:     0,
	CommandCancel:   0,
	CommandStatus:   0,
	CommandDevices:  0,
	CommandModels:   0,
	CommandDownload: 1,
	CommandDelete:   1,
	CommandDoctor:   0,
	CommandVersion:  0,
	CommandHelp:     0,
}

type Parsed struct {
	Command    Command
	Args       []string
	ConfigPath string
	Verbose    bool
	ShowHelp   bool
}

// ModelID returns the model argument of download and delete.
func (p Parsed) ModelID() string {
	if len(p.Args) == 0 {
		return ""
	}
	return p.Args[0]
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			arity, ok := commandArity[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			rest := args[i+1:]
			if len(rest) < arity {
				return Parsed{}, fmt.Errorf("command %q requires a model id", arg)
			}
			if len(rest) > arity {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}

			parsed.Command = cmd
			parsed.Args = append([]string(nil), rest...)
			parsed.ShowHelp = cmd == CommandHelp
			return parsed, nil
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--verbose] <command>

Commands:
  run            Start the daemon: hotkey listener, recorder, and control socket
  toggle         Start recording, or stop and transcribe when already recording
  press          Send a hotkey press to the running daemon
  release        Send a hotkey release to the running daemon
  stop           Stop the active recording and transcribe it
  cancel         Discard the active recording
  status         Print the daemon state
  devices        List available input devices
  models         List known models and their download state
  download ID    Download a model
  delete ID      Delete a downloaded model
  doctor         Run configuration and environment checks
  version        Print version information
  help           Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/voxkey/config.yaml)
  -v, --verbose   Also log to stderr
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
