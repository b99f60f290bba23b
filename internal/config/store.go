package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Store serves the most recent valid configuration. Activation decisions read
// it through Current so edits to the file apply to the next recording.
type Store struct {
	path   string
	logger zerolog.Logger

	mu     sync.RWMutex
	loaded Loaded
}

// NewStore wraps an already loaded configuration.
func NewStore(loaded Loaded, logger zerolog.Logger) *Store {
	return &Store{path: loaded.Path, logger: logger, loaded: loaded}
}

// Current returns the latest valid configuration.
func (s *Store) Current() (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded.Config, nil
}

// Loaded returns the latest load result including its warnings.
func (s *Store) Loaded() Loaded {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Reload re-reads the file. An invalid file leaves the previous config active.
func (s *Store) Reload() (Loaded, error) {
	loaded, err := Load(s.path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("config reload rejected; keeping previous config")
		return Loaded{}, err
	}

	s.mu.Lock()
	s.loaded = loaded
	s.mu.Unlock()

	for _, w := range loaded.Warnings {
		s.logger.Warn().Str("path", s.path).Msg(w.Message)
	}
	s.logger.Info().Str("path", s.path).Msg("config reloaded")
	return loaded, nil
}

// Watch reloads the store whenever the config file changes on disk. It is a
// no-op when the file did not exist at load time.
func (s *Store) Watch() {
	if !s.Loaded().Exists {
		return
	}
	v := viper.New()
	v.SetConfigFile(s.path)
	v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		_, _ = s.Reload()
	})
	v.WatchConfig()
}
