package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName    = "stockbarcode"
	configFile = "config.yaml"

	// ConfigPathEnvVar overrides the configuration file location.
	ConfigPathEnvVar = "STOCKBARCODE_CONFIG"
)

// GetConfigDir returns the directory holding the registry:
//   - Linux: $XDG_CONFIG_HOME/stockbarcode or $HOME/.config/stockbarcode
//   - macOS: $HOME/.config/stockbarcode
//   - Windows: %LOCALAPPDATA%\stockbarcode
func GetConfigDir() (string, error) {
	base, err := configBase()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

// configBase picks the per-user configuration root. macOS uses $HOME/.config
// and ignores XDG_CONFIG_HOME.
func configBase() (string, error) {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir, nil
		}
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			return filepath.Join(profile, "AppData", "Local"), nil
		}
		return "", errors.New("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
	}
	if runtime.GOOS != "darwin" {
		if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
			return dir, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config"), nil
}

// GetConfigPath returns the registry file path. STOCKBARCODE_CONFIG takes
// precedence when set.
func GetConfigPath() (string, error) {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}
