package config

import "time"

// Registry is the operator's configuration file: the backends and scanner
// bridges they have used and their preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Servers     map[string]*Server `yaml:"servers,omitempty"` // keyed by a short name
	Bridges     map[string]*Bridge `yaml:"bridges,omitempty"` // keyed by mDNS instance
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Server is a stock backend the operator has used.
type Server struct {
	URL      string    `yaml:"url"`
	Database string    `yaml:"database,omitempty"`
	Login    string    `yaml:"login,omitempty"`
	LastUsed time.Time `yaml:"last_used,omitempty"`
	// Password is NEVER stored; it comes from the flag, the environment or a prompt.
}

// Bridge is a scanner bridge found through discovery or entered by hand.
type Bridge struct {
	Address  string    `yaml:"address"` // host:port
	TLS      bool      `yaml:"tls,omitempty"`
	LastSeen time.Time `yaml:"last_seen,omitempty"`
}

// Preferences are the operator's session defaults.
type Preferences struct {
	PlaySound       bool   `yaml:"play_sound"`
	SearchLimit     int    `yaml:"search_limit"`
	ScrollThreshold int    `yaml:"scroll_threshold"` // rows
	LogLevel        string `yaml:"log_level,omitempty"`
	DefaultServer   string `yaml:"default_server,omitempty"`
	DefaultBridge   string `yaml:"default_bridge,omitempty"`
}

const (
	registryVersion        = 1
	defaultSearchLimit     = 200
	defaultScrollThreshold = 1
)
