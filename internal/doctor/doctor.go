// Package doctor runs runtime readiness diagnostics for config, audio, hotkey,
// typing, and the configured transcription backend.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/config"
	"github.com/rbright/voxkey/internal/hotkey"
	"github.com/rbright/voxkey/internal/model"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// selectDevice is swapped in tests.
var selectDevice = audio.SelectDevice

// diagnoseHotkey is swapped in tests.
var diagnoseHotkey = hotkey.Diagnose

// uinputPath is the device the keystroke simulator writes to on Linux.
var uinputPath = "/dev/uinput"

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkHotkey(cfg.Hotkey))
	checks = append(checks, checkHotkeyAccess())

	if cfg.Output.Method == "type" && runtime.GOOS == "linux" {
		checks = append(checks, checkWritable(uinputPath, "typing.uinput"))
	}

	checks = append(checks, checkAudioSelection(ctx, cfg))

	switch cfg.Transcription.Backend {
	case "hosted":
		checks = append(checks, checkAPIKey(cfg.Transcription.Hosted))
		checks = append(checks, checkEndpoint(ctx, cfg.Transcription.Hosted.URL))
	default:
		checks = append(checks, checkModel(cfg.Transcription.Local))
		argv, err := cfg.Transcription.Local.ServerArgv()
		if err != nil {
			checks = append(checks, Check{Name: "transcription.local.server_cmd", Pass: false, Message: err.Error()})
		} else {
			checks = append(checks, checkCommand(argv, "server_cmd"))
		}
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 {
		message = fmt.Sprintf("%s (%d warnings)", message, n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkHotkeyAccess reports whether the global listener can see the keyboard.
// A failure is not fatal for the daemon, which still accepts socket press and
// release, so the hint points there.
func checkHotkeyAccess() Check {
	msg, err := diagnoseHotkey()
	if err != nil {
		return Check{Name: "hotkey.access", Pass: false, Message: err.Error() + "; or bind keys to `voxkey press`/`voxkey release`"}
	}
	return Check{Name: "hotkey.access", Pass: true, Message: msg}
}

func checkHotkey(raw string) Check {
	spec, err := hotkey.ParseSpec(raw)
	if err != nil {
		return Check{Name: "hotkey", Pass: false, Message: err.Error()}
	}
	return Check{Name: "hotkey", Pass: true, Message: spec.String()}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkWritable(path, name string) Check {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("cannot open %s for writing: %v", path, err)}
	}
	_ = f.Close()
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is writable", path)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := selectDevice(ctx, cfg.Recording.DeviceIndex, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkModel(local config.LocalConfig) Check {
	const name = "transcription.local.model"
	id := strings.TrimSpace(local.Model)
	if id == "" {
		return Check{Name: name, Pass: false, Message: "model is empty"}
	}
	dir, err := config.ResolveModelDir(local)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	path := filepath.Join(dir, model.FileName(id))
	if _, err := os.Stat(path); err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s not downloaded; run `voxkey download %s`", id, id)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s at %s", id, path)}
}

func checkAPIKey(hosted config.HostedConfig) Check {
	const name = "transcription.hosted.api_key"
	if strings.TrimSpace(hosted.APIKey) == "" {
		return Check{Name: name, Pass: false, Message: "api key is empty (set VOXKEY_TRANSCRIPTION_HOSTED_API_KEY or OPENAI_API_KEY)"}
	}
	return Check{Name: name, Pass: true, Message: "api key configured"}
}

// checkEndpoint probes that the hosted endpoint answers. Any non-5xx status
// counts as reachable since the probe carries no credentials or audio.
func checkEndpoint(ctx context.Context, url string) Check {
	const name = "transcription.hosted.url"
	url = strings.TrimSpace(url)
	if url == "" {
		return Check{Name: name, Pass: false, Message: "url is empty"}
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("invalid url: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("reachable at %s (HTTP %d)", url, resp.StatusCode)}
}
