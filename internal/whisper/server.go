// Package whisper runs a whisper.cpp server sidecar as the local inference engine.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/encoder"
	"github.com/rbright/voxkey/internal/model"
	"github.com/rs/zerolog"
)

const (
	healthPollInterval = 100 * time.Millisecond
	stopGracePeriod    = 2 * time.Second
	stderrTailBytes    = 2048
)

// Config controls how the sidecar is launched.
type Config struct {
	// Command is the server binary followed by extra flags.
	Command        []string
	Host           string
	Port           int
	Language       string
	StartupTimeout time.Duration
}

// Server is one running whisper.cpp server with a model resident.
type Server struct {
	cfg     Config
	logger  zerolog.Logger
	baseURL string
	client  *http.Client

	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
	stderr  *tailBuffer

	closeOnce sync.Once
}

// Loader returns a model.Loader that starts one sidecar per load.
func Loader(cfg Config, logger zerolog.Logger) model.Loader {
	return func(ctx context.Context, path string) (model.Engine, error) {
		return Start(ctx, cfg, path, logger)
	}
}

// Start launches the server for modelPath and blocks until it reports healthy,
// the process exits, ctx ends, or the startup timeout elapses.
func Start(ctx context.Context, cfg Config, modelPath string, logger zerolog.Logger) (*Server, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("whisper server command is empty")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 20 * time.Second
	}

	args := append([]string(nil), cfg.Command[1:]...)
	args = append(args,
		"--model", modelPath,
		"--host", cfg.Host,
		"--port", strconv.Itoa(cfg.Port),
	)
	if cfg.Language != "" {
		args = append(args, "--language", cfg.Language)
	}

	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd := exec.Command(cfg.Command[0], args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Command[0], err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		baseURL: "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		client:  &http.Client{},
		cmd:     cmd,
		exited:  make(chan struct{}),
		stderr:  stderr,
	}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()

	logger.Debug().Str("binary", cfg.Command[0]).Str("model", modelPath).Str("url", s.baseURL).Msg("whisper server starting")

	if err := s.waitHealthy(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Info().Str("model", modelPath).Int("pid", cmd.Process.Pid).Msg("whisper server ready")
	return s, nil
}

// waitHealthy polls /health at a constant interval until it answers, the
// process exits, or the startup timeout elapses.
func (s *Server) waitHealthy(ctx context.Context) error {
	var exited bool
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		select {
		case <-s.exited:
			exited = true
			return struct{}{}, backoff.Permanent(fmt.Errorf("whisper server exited during startup: %v: %s", s.waitErr, s.stderr.String()))
		default:
		}
		return struct{}{}, s.checkHealth(ctx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(healthPollInterval)),
		backoff.WithMaxElapsedTime(s.cfg.StartupTimeout),
	)
	switch {
	case err == nil:
		return nil
	case exited:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("whisper server not healthy after %s: %w", s.cfg.StartupTimeout, err)
	}
}

func (s *Server) checkHealth(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

type inferenceResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error"`
}

// Transcribe posts rec as WAV to the server's inference endpoint.
func (s *Server) Transcribe(ctx context.Context, rec audio.Recording) (model.Output, error) {
	wav, err := encoder.WAV(rec)
	if err != nil {
		return model.Output{}, fmt.Errorf("encode audio: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return model.Output{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return model.Output{}, fmt.Errorf("write audio data: %w", err)
	}
	_ = writer.WriteField("response_format", "verbose_json")
	_ = writer.WriteField("temperature", "0.0")
	if s.cfg.Language != "" {
		_ = writer.WriteField("language", s.cfg.Language)
	}
	if err := writer.Close(); err != nil {
		return model.Output{}, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/inference", &body)
	if err != nil {
		return model.Output{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return model.Output{}, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Output{}, fmt.Errorf("inference status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Output{}, fmt.Errorf("decode inference response: %w", err)
	}
	if out.Error != "" {
		return model.Output{}, fmt.Errorf("inference: %s", out.Error)
	}

	return model.Output{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
		Duration: time.Duration(out.Duration * float64(time.Second)),
	}, nil
}

// Close stops the sidecar, escalating to SIGKILL after a grace period.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd == nil || s.cmd.Process == nil {
			return
		}
		select {
		case <-s.exited:
			return
		default:
		}

		_ = s.cmd.Process.Signal(os.Interrupt)
		select {
		case <-s.exited:
		case <-time.After(stopGracePeriod):
			_ = s.cmd.Process.Kill()
			<-s.exited
		}
		s.logger.Debug().Int("pid", s.cmd.Process.Pid).Msg("whisper server stopped")
	})
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
