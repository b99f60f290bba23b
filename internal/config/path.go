package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const fileName = "config.yaml"

// ResolvePath applies CLI/XDG/home fallback rules for the config file location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "voxkey", fileName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", "voxkey", fileName), nil
}

// ResolveModelDir returns the configured model directory or the XDG data fallback.
func ResolveModelDir(cfg LocalConfig) (string, error) {
	if dir := strings.TrimSpace(cfg.ModelDir); dir != "" {
		return expandUserPath(dir), nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "voxkey", "models"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for model directory")
	}
	return filepath.Join(home, ".local", "share", "voxkey", "models"), nil
}

func expandUserPath(raw string) string {
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(raw, "~"), "/"))
}
