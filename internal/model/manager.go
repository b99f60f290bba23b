// Package model controls download, residency, and exclusive use of local
// transcription models.
package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbright/voxkey/internal/audio"
	"github.com/rbright/voxkey/internal/transcribe"
	"github.com/rs/zerolog"
)

// Output is the text an engine produced for one recording.
type Output struct {
	Text     string
	Language string
	Duration time.Duration
}

// Engine is a resident inference backend for one model file.
type Engine interface {
	Transcribe(ctx context.Context, rec audio.Recording) (Output, error)
	Close() error
}

// Loader makes the model at path resident and returns its engine.
type Loader func(ctx context.Context, path string) (Engine, error)

// LoadState is a snapshot of model residency.
type LoadState struct {
	LoadedModelID string
	Loading       bool
	Downloading   bool
}

// LoadingEvent is emitted around every load.
type LoadingEvent struct {
	ModelID string
	Loading bool
	Err     error
}

// Status describes one model for listing.
type Status struct {
	Info
	Path       string
	Downloaded bool
	Loaded     bool
}

// Options configures a Manager.
type Options struct {
	Dir        string
	Catalog    []Info
	Loader     Loader
	HTTPClient *http.Client
	Logger     zerolog.Logger

	// OnProgress receives download progress at most once per ProgressInterval
	// plus a final update per phase.
	OnProgress       func(Progress)
	ProgressInterval time.Duration
	// OnLoading receives loading started/finished notifications.
	OnLoading func(LoadingEvent)
}

// Manager owns at most one loaded engine. Load, Unload, and Delete serialize
// on one operation lock; the snapshot state has its own lock so observers
// never wait behind a slow load.
type Manager struct {
	dir       string
	catalog   map[string]Info
	loader    Loader
	client    *http.Client
	logger    zerolog.Logger
	interval  time.Duration
	progress  func(Progress)
	onLoading func(LoadingEvent)

	opMu sync.Mutex
	dlMu sync.Mutex

	mu     sync.RWMutex
	state  LoadState
	engine Engine
}

// NewManager builds a manager rooted at opts.Dir.
func NewManager(opts Options) *Manager {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	progress := opts.OnProgress
	if progress == nil {
		progress = func(Progress) {}
	}
	onLoading := opts.OnLoading
	if onLoading == nil {
		onLoading = func(LoadingEvent) {}
	}
	return &Manager{
		dir:       opts.Dir,
		catalog:   indexCatalog(catalog),
		loader:    opts.Loader,
		client:    client,
		logger:    opts.Logger,
		interval:  interval,
		progress:  progress,
		onLoading: onLoading,
	}
}

// Dir returns the model directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns where the artifact for id lives on disk.
func (m *Manager) Path(id string) string {
	return filepath.Join(m.dir, FileName(id))
}

// Lookup returns catalog metadata for id.
func (m *Manager) Lookup(id string) (Info, bool) {
	info, ok := m.catalog[id]
	return info, ok
}

// Catalog returns every known model ordered by size.
func (m *Manager) Catalog() []Info {
	return sortedInfos(m.catalog)
}

// Models returns catalog entries annotated with download and residency status.
func (m *Manager) Models() []Status {
	loaded := m.State().LoadedModelID
	infos := m.Catalog()
	out := make([]Status, 0, len(infos))
	for _, info := range infos {
		out = append(out, Status{
			Info:       info,
			Path:       m.Path(info.ID),
			Downloaded: m.IsDownloaded(info.ID),
			Loaded:     info.ID == loaded,
		})
	}
	return out
}

// State returns a snapshot of the load state.
func (m *Manager) State() LoadState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsDownloaded reports whether the artifact for id exists and is non-empty.
func (m *Manager) IsDownloaded(id string) bool {
	info, err := os.Stat(m.Path(id))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Load makes id the resident model. Loading the already resident id is a
// no-op; otherwise the current model is unloaded first so two are never
// resident together.
func (m *Manager) Load(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &LoadError{ModelID: id, Err: ErrEmptyModelID}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State().LoadedModelID == id {
		return nil
	}
	if m.loader == nil {
		return &LoadError{ModelID: id, Err: errors.New("no model loader configured")}
	}

	path := m.Path(id)
	if !m.IsDownloaded(id) {
		return &LoadError{ModelID: id, Err: fmt.Errorf("%w: %s", ErrModelMissing, path)}
	}

	m.unloadLocked()

	m.setLoading(true)
	m.onLoading(LoadingEvent{ModelID: id, Loading: true})
	started := time.Now()
	engine, err := m.loader(ctx, path)
	m.setLoading(false)
	if err != nil {
		m.onLoading(LoadingEvent{ModelID: id, Loading: false, Err: err})
		m.logger.Error().Err(err).Str("model", id).Msg("model load failed")
		return &LoadError{ModelID: id, Err: err}
	}

	m.mu.Lock()
	m.engine = engine
	m.state.LoadedModelID = id
	m.mu.Unlock()

	m.onLoading(LoadingEvent{ModelID: id, Loading: false})
	m.logger.Info().Str("model", id).Dur("elapsed", time.Since(started)).Msg("model loaded")
	return nil
}

// Unload releases the resident engine. It is a no-op when nothing is loaded.
func (m *Manager) Unload() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.unloadLocked()
}

func (m *Manager) unloadLocked() {
	m.mu.Lock()
	engine := m.engine
	id := m.state.LoadedModelID
	m.engine = nil
	m.state.LoadedModelID = ""
	m.mu.Unlock()

	if engine == nil {
		return
	}
	if err := engine.Close(); err != nil {
		m.logger.Warn().Err(err).Str("model", id).Msg("model engine close failed")
		return
	}
	m.logger.Info().Str("model", id).Msg("model unloaded")
}

// Transcribe runs rec through the resident engine. It returns ErrNotLoaded
// when no model is resident; engine failures become failed results.
func (m *Manager) Transcribe(ctx context.Context, rec audio.Recording) (transcribe.Result, error) {
	m.mu.RLock()
	engine := m.engine
	m.mu.RUnlock()

	if engine == nil {
		return transcribe.Result{}, ErrNotLoaded
	}

	out, err := engine.Transcribe(ctx, rec)
	if err != nil {
		return transcribe.Failed(fmt.Errorf("local transcription: %w", err)), nil
	}
	return transcribe.Succeeded(out.Text, out.Language, out.Duration), nil
}

// Delete removes the artifact for id, unloading it first when resident.
// Deleting a model that is not on disk is a no-op.
func (m *Manager) Delete(id string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State().LoadedModelID == id {
		m.unloadLocked()
	}
	if err := os.Remove(m.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete model %q: %w", id, err)
	}
	m.logger.Info().Str("model", id).Msg("model deleted")
	return nil
}

// Close unloads any resident model.
func (m *Manager) Close() {
	m.Unload()
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.state.Loading = v
	m.mu.Unlock()
}

func (m *Manager) setDownloading(v bool) {
	m.mu.Lock()
	m.state.Downloading = v
	m.mu.Unlock()
}
