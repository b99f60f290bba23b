package doctor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/config"
	"github.com/rbright/voxkey/internal/model"
	"github.com/stretchr/testify/require"
)

func stubSelectDevice(t *testing.T, sel audio.Selection, err error) {
	t.Helper()
	orig := selectDevice
	selectDevice = func(context.Context, int, string, string) (audio.Selection, error) {
		return sel, err
	}
	t.Cleanup(func() { selectDevice = orig })
}

func findCheck(t *testing.T, report Report, name string) Check {
	t.Helper()
	for _, check := range report.Checks {
		if check.Name == name {
			return check
		}
	}
	t.Fatalf("check %q not found in %v", name, report.Checks)
	return Check{}
}

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func stubDiagnoseHotkey(t *testing.T, msg string, err error) {
	t.Helper()
	orig := diagnoseHotkey
	diagnoseHotkey = func() (string, error) { return msg, err }
	t.Cleanup(func() { diagnoseHotkey = orig })
}

func TestCheckHotkeyAccess(t *testing.T) {
	stubDiagnoseHotkey(t, "2 keyboard(s) found", nil)
	check := checkHotkeyAccess()
	require.True(t, check.Pass)
	require.Equal(t, "2 keyboard(s) found", check.Message)

	stubDiagnoseHotkey(t, "", errors.New("no keyboard devices found"))
	check = checkHotkeyAccess()
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "no keyboard devices found")
	require.Contains(t, check.Message, "voxkey press")
}

func TestCheckHotkey(t *testing.T) {
	check := checkHotkey("Space+Ctrl")
	require.True(t, check.Pass)
	require.Equal(t, "ctrl+space", check.Message)

	check = checkHotkey("ctrl+nope")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "unknown key")
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "server_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-whisper-server")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-whisper-server", "--threads", "4"}, "server_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "server_cmd command is available")
}

func TestCheckWritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uinput")
	require.False(t, checkWritable(path, "typing.uinput").Pass)

	require.NoError(t, os.WriteFile(path, nil, 0o600))
	require.True(t, checkWritable(path, "typing.uinput").Pass)
}

func TestCheckModel(t *testing.T) {
	dir := t.TempDir()
	local := config.Default().Transcription.Local
	local.ModelDir = dir
	local.Model = "tiny.en"

	check := checkModel(local)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "voxkey download tiny.en")

	require.NoError(t, os.WriteFile(filepath.Join(dir, model.FileName("tiny.en")), []byte("ggml"), 0o644))
	check = checkModel(local)
	require.True(t, check.Pass)

	local.Model = " "
	require.False(t, checkModel(local).Pass)
}

func TestCheckAPIKey(t *testing.T) {
	require.False(t, checkAPIKey(config.HostedConfig{}).Pass)
	require.True(t, checkAPIKey(config.HostedConfig{APIKey: "sk-test"}).Pass)
}

func TestCheckEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	t.Cleanup(server.Close)

	check := checkEndpoint(context.Background(), server.URL)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 405")
}

func TestCheckEndpointServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	check := checkEndpoint(context.Background(), server.URL)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 503")

	require.False(t, checkEndpoint(context.Background(), "").Pass)
}

func TestCheckAudioSelection(t *testing.T) {
	stubSelectDevice(t, audio.Selection{
		Device:  audio.Device{ID: "alsa_input.usb"},
		Warning: "input not found; using fallback",
	}, nil)

	check := checkAudioSelection(context.Background(), config.Default())
	require.True(t, check.Pass)
	require.Contains(t, check.Message, `"alsa_input.usb"`)
	require.Contains(t, check.Message, "fallback")
}

func TestCheckAudioSelectionFailure(t *testing.T) {
	stubSelectDevice(t, audio.Selection{}, errors.New("connect pulse server: refused"))

	check := checkAudioSelection(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Equal(t, "audio.device", check.Name)
}

func TestRunLocalBackendChecksModelAndServer(t *testing.T) {
	stubSelectDevice(t, audio.Selection{Device: audio.Device{ID: "mic"}}, nil)
	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "whisper-server"), []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))

	cfg := config.Default()
	cfg.Output.Method = "clipboard"
	cfg.Transcription.Local.ModelDir = t.TempDir()

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.yaml", Config: cfg, Exists: true})

	require.True(t, findCheck(t, report, "config").Pass)
	require.True(t, findCheck(t, report, "hotkey").Pass)
	require.True(t, findCheck(t, report, "whisper-server").Pass)
	require.False(t, findCheck(t, report, "transcription.local.model").Pass)
	require.False(t, report.OK())
}

func TestRunHostedBackendChecksKey(t *testing.T) {
	stubSelectDevice(t, audio.Selection{Device: audio.Device{ID: "mic"}}, nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)
	stubDiagnoseHotkey(t, "1 keyboard(s) found", nil)

	cfg := config.Default()
	cfg.Output.Method = "clipboard"
	cfg.Transcription.Backend = "hosted"
	cfg.Transcription.Hosted.URL = server.URL
	cfg.Transcription.Hosted.APIKey = "sk-test"

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.yaml", Config: cfg})

	require.Contains(t, findCheck(t, report, "config").Message, "using defaults")
	require.True(t, findCheck(t, report, "transcription.hosted.api_key").Pass)
	require.True(t, findCheck(t, report, "transcription.hosted.url").Pass)
	require.True(t, report.OK(), report.String())
}
