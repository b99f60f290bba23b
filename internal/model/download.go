package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Download phases reported through Progress.
const (
	PhaseConnecting  = "connecting"
	PhaseDownloading = "downloading"
	PhaseComplete    = "complete"
)

// Progress reports download advancement for one model.
type Progress struct {
	ModelID    string
	Phase      string
	BytesDone  int64
	BytesTotal int64
}

// Percent returns completion in [0,100], or -1 when the total is unknown.
func (p Progress) Percent() float64 {
	if p.BytesTotal <= 0 {
		return -1
	}
	return float64(p.BytesDone) * 100 / float64(p.BytesTotal)
}

// Download fetches the artifact for id. It returns immediately when the model
// is already on disk. Bytes stream to a temp file in the model directory that
// is renamed into place on success and removed on failure or cancellation.
func (m *Manager) Download(ctx context.Context, id string) error {
	info, ok := m.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}

	m.dlMu.Lock()
	defer m.dlMu.Unlock()

	if m.IsDownloaded(id) {
		return nil
	}

	m.setDownloading(true)
	defer m.setDownloading(false)

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	m.progress(Progress{ModelID: id, Phase: PhaseConnecting})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %q: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %q: unexpected status %d", id, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(m.dir, FileName(id)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	pw := &progressWriter{
		report:   m.progress,
		interval: m.interval,
		current:  Progress{ModelID: id, Phase: PhaseDownloading, BytesTotal: resp.ContentLength},
	}
	started := time.Now()
	if _, err := io.Copy(io.MultiWriter(tmp, pw), resp.Body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("download %q: %w", id, err)
	}
	if resp.ContentLength > 0 && pw.current.BytesDone != resp.ContentLength {
		return fmt.Errorf("download %q: truncated at %d of %d bytes", id, pw.current.BytesDone, resp.ContentLength)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.Path(id)); err != nil {
		return fmt.Errorf("install model: %w", err)
	}
	committed = true

	m.progress(Progress{ModelID: id, Phase: PhaseComplete, BytesDone: pw.current.BytesDone, BytesTotal: pw.current.BytesDone})
	m.logger.Info().
		Str("model", id).
		Int64("bytes", pw.current.BytesDone).
		Dur("elapsed", time.Since(started)).
		Msg("model downloaded")
	return nil
}

// progressWriter counts bytes and reports at most once per interval.
type progressWriter struct {
	report   func(Progress)
	interval time.Duration
	current  Progress
	last     time.Time
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.current.BytesDone += int64(len(p))
	now := time.Now()
	if w.last.IsZero() || now.Sub(w.last) >= w.interval {
		w.last = now
		w.report(w.current)
	}
	return len(p), nil
}
