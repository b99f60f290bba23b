package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "VOXKEY"

// Loaded captures resolved config path, decoded values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, decodes, and validates the runtime configuration.
//
// Values resolve in order: defaults, config file, then VOXKEY_* environment
// variables. A .env file beside the config file is loaded first without
// overriding variables that are already set.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, &Error{Err: err}
	}

	exists := true
	if _, err := os.Stat(resolvedPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Loaded{}, &Error{Path: resolvedPath, Err: fmt.Errorf("stat config: %w", err)}
		}
		exists = false
	}

	var warnings []Warning
	envPath := filepath.Join(filepath.Dir(resolvedPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("ignoring %q: %v", envPath, err)})
		}
	}

	v := newViper()
	if exists {
		v.SetConfigFile(resolvedPath)
		if err := v.ReadInConfig(); err != nil {
			return Loaded{}, &Error{Path: resolvedPath, Err: fmt.Errorf("read config: %w", err)}
		}
	} else {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	}

	cfg, decodeWarnings, err := decode(v)
	if err != nil {
		return Loaded{}, &Error{Path: resolvedPath, Err: err}
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: append(warnings, decodeWarnings...),
		Exists:   exists,
	}, nil
}

// newViper builds a viper instance seeded with every default key.
func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaultKeys() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (Config, []Warning, error) {
	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Recording.Mode = Mode(strings.ToLower(strings.TrimSpace(string(cfg.Recording.Mode))))
	cfg.Hotkey = strings.TrimSpace(cfg.Hotkey)
	if strings.TrimSpace(cfg.Transcription.Hosted.APIKey) == "" {
		cfg.Transcription.Hosted.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}
