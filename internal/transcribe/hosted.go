package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/encoder"
	"github.com/rs/zerolog"
)

const maxErrorBody = 300

// HostedConfig configures an OpenAI-compatible /audio/transcriptions endpoint.
type HostedConfig struct {
	URL        string
	APIKey     string
	Model      string
	Format     string
	Language   string
	Timeout    time.Duration
	MaxRetries int
}

// StatusError is a non-2xx response from the hosted endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Hosted uploads recordings to a remote transcription API. 429 and 5xx
// responses are retried with exponential backoff up to MaxRetries times.
type Hosted struct {
	cfg    HostedConfig
	client *http.Client
	logger zerolog.Logger

	retryInterval time.Duration
}

// NewHosted builds a hosted backend.
func NewHosted(cfg HostedConfig, logger zerolog.Logger) *Hosted {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Format == "" {
		cfg.Format = encoder.FormatFLAC
	}
	return &Hosted{
		cfg:           cfg,
		client:        &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
		retryInterval: 500 * time.Millisecond,
	}
}

type hostedResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Transcribe encodes rec and posts it to the configured endpoint.
func (h *Hosted) Transcribe(ctx context.Context, rec audio.Recording) Result {
	if rec.Empty() {
		return Failedf("no audio captured")
	}

	encoded, err := encoder.Encode(h.cfg.Format, rec)
	if err != nil {
		return Failed(fmt.Errorf("encode audio: %w", err))
	}

	attempt := 0
	started := time.Now()
	resp, err := backoff.Retry(ctx, func() (hostedResponse, error) {
		attempt++
		out, err := h.post(ctx, encoded)
		if err != nil && !isPermanent(err) {
			h.logger.Warn().Err(err).Int("attempt", attempt).Str("recording_id", rec.ID).Msg("hosted transcription attempt failed")
		}
		return out, err
	},
		backoff.WithBackOff(h.newBackOff()),
		backoff.WithMaxTries(uint(h.cfg.MaxRetries+1)),
	)
	if err != nil {
		return Failed(fmt.Errorf("hosted transcription: %w", err))
	}

	h.logger.Debug().
		Str("recording_id", rec.ID).
		Int("attempts", attempt).
		Dur("latency", time.Since(started)).
		Int("upload_bytes", len(encoded.Data)).
		Msg("hosted transcription complete")

	return Succeeded(
		strings.TrimSpace(resp.Text),
		resp.Language,
		time.Duration(resp.Duration*float64(time.Second)),
	)
}

func (h *Hosted) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.retryInterval
	b.MaxInterval = 10 * h.retryInterval
	return b
}

func (h *Hosted) post(ctx context.Context, encoded encoder.Encoded) (hostedResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", encoded.Filename())
	if err != nil {
		return hostedResponse{}, backoff.Permanent(fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(encoded.Data); err != nil {
		return hostedResponse{}, backoff.Permanent(fmt.Errorf("write audio data: %w", err))
	}
	_ = writer.WriteField("model", h.cfg.Model)
	_ = writer.WriteField("response_format", "verbose_json")
	if h.cfg.Language != "" {
		_ = writer.WriteField("language", h.cfg.Language)
	}
	if err := writer.Close(); err != nil {
		return hostedResponse{}, backoff.Permanent(fmt.Errorf("close multipart body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, &body)
	if err != nil {
		return hostedResponse{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return hostedResponse{}, backoff.Permanent(ctx.Err())
		}
		return hostedResponse{}, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				h.logger.Debug().Int("retry_after_s", secs).Msg("hosted endpoint rate limited")
				return hostedResponse{}, backoff.RetryAfter(secs)
			}
			return hostedResponse{}, statusErr
		case resp.StatusCode >= 500:
			return hostedResponse{}, statusErr
		default:
			return hostedResponse{}, backoff.Permanent(statusErr)
		}
	}

	var out hostedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return hostedResponse{}, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return out, nil
}

func isPermanent(err error) bool {
	var permanent *backoff.PermanentError
	return errors.As(err, &permanent)
}
