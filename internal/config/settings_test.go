package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("server", "", "")
	fs.String("database", "", "")
	fs.String("login", "", "")
	fs.String("password", "", "")
	fs.String("bridge", "", "")
	fs.Bool("play-sound", true, "")
	fs.Int("search-limit", 200, "")
	fs.Int("scroll-threshold", 1, "")
	fs.Duration("timeout", 15*time.Second, "")
	fs.String("log-level", "", "")
	return fs
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SERVER_URL", "DATABASE", "LOGIN", "PASSWORD", "BRIDGE_URL",
		"PLAY_SOUND", "SEARCH_LIMIT", "SCROLL_THRESHOLD", "TIMEOUT", "RETRIES", "LOG_LEVEL", "LOG_FILE"} {
		t.Setenv(EnvPrefix+"_"+k, "")
	}
}

func TestLoadSettingsFromRegistry(t *testing.T) {
	clearEnv(t)
	reg := NewRegistry()
	reg.SetServer("main", "https://erp.example.com", "prod", "picker")
	reg.Preferences.SearchLimit = 75
	reg.Preferences.PlaySound = false

	s, err := LoadSettings(reg, nil)
	require.NoError(t, err)

	assert.Equal(t, "https://erp.example.com", s.ServerURL)
	assert.Equal(t, "prod", s.Database)
	assert.Equal(t, "picker", s.Login)
	assert.Equal(t, 75, s.SearchLimit)
	assert.False(t, s.PlaySound)
	assert.Equal(t, 15*time.Second, s.Timeout)
}

func TestLoadSettingsPrecedence(t *testing.T) {
	clearEnv(t)
	reg := NewRegistry()
	reg.SetServer("main", "https://erp.example.com", "prod", "picker")

	t.Setenv("STOCKBARCODE_DATABASE", "from-env")
	t.Setenv("STOCKBARCODE_SEARCH_LIMIT", "30")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--search-limit=10", "--timeout=3s"}))

	s, err := LoadSettings(reg, fs)
	require.NoError(t, err)

	assert.Equal(t, "https://erp.example.com", s.ServerURL, "registry value kept")
	assert.Equal(t, "from-env", s.Database, "env overrides registry")
	assert.Equal(t, 10, s.SearchLimit, "flag overrides env")
	assert.Equal(t, 3*time.Second, s.Timeout)
}

func TestLoadSettingsUnsetFlagDoesNotOverride(t *testing.T) {
	clearEnv(t)
	reg := NewRegistry()
	reg.SetServer("main", "https://erp.example.com", "prod", "picker")
	reg.Preferences.SearchLimit = 40

	fs := testFlags()
	require.NoError(t, fs.Parse(nil))

	s, err := LoadSettings(reg, fs)
	require.NoError(t, err)
	assert.Equal(t, 40, s.SearchLimit)
}

func TestLoadSettingsValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing server", nil, "server_url is required"},
		{"bad server url", []string{"--server=not a url"}, "server_url must be a valid URL"},
		{"zero search limit", []string{"--server=http://localhost:8069", "--search-limit=0"}, "search_limit must be at least 1"},
		{"bad log level", []string{"--server=http://localhost:8069", "--log-level=loud"}, "log_level must be one of"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			fs := testFlags()
			require.NoError(t, fs.Parse(tt.args))

			_, err := LoadSettings(NewRegistry(), fs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadSettingsBridgeFromRegistry(t *testing.T) {
	clearEnv(t)
	reg := NewRegistry()
	reg.SetServer("main", "http://localhost:8069", "demo", "admin")
	reg.UpdateBridgeSeen("dock-3", "10.0.0.12:8765", true)
	reg.Preferences.DefaultBridge = "dock-3"

	s, err := LoadSettings(reg, nil)
	require.NoError(t, err)
	assert.Equal(t, "wss://10.0.0.12:8765/ws/session", s.BridgeURL)
}
