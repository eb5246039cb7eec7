package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mhma/stockbarcode/internal/discovery"
)

var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
	globalRegistryErr  error

	// fileMutex serialises reads and writes of the registry file.
	fileMutex sync.Mutex
)

const fileHeader = `# stockbarcode configuration
# Known backends, scanner bridges and operator preferences.
#
# Passwords are NEVER stored in this file. Use --password,
# STOCKBARCODE_PASSWORD or answer the prompt.
#
# Location: %s

`

func defaultPreferences() *Preferences {
	return &Preferences{
		PlaySound:       true,
		SearchLimit:     defaultSearchLimit,
		ScrollThreshold: defaultScrollThreshold,
	}
}

// NewRegistry creates an empty registry with default preferences.
func NewRegistry() *Registry {
	r := &Registry{Version: registryVersion}
	r.normalize()
	return r
}

// normalize fills what an older or hand-edited file left out and drops
// defaults pointing at entries that no longer exist.
func (r *Registry) normalize() {
	if r.Servers == nil {
		r.Servers = make(map[string]*Server)
	}
	if r.Bridges == nil {
		r.Bridges = make(map[string]*Bridge)
	}
	if r.Preferences == nil {
		r.Preferences = defaultPreferences()
	}
	p := r.Preferences
	if p.SearchLimit <= 0 {
		p.SearchLimit = defaultSearchLimit
	}
	if p.ScrollThreshold <= 0 {
		p.ScrollThreshold = defaultScrollThreshold
	}
	if _, ok := r.Servers[p.DefaultServer]; !ok {
		p.DefaultServer = ""
	}
	if _, ok := r.Bridges[p.DefaultBridge]; !ok {
		p.DefaultBridge = ""
	}
}

// GetServer returns the named server or nil.
func (r *Registry) GetServer(name string) *Server {
	return r.Servers[name]
}

// SetServer adds or replaces a server entry. The first server added becomes
// the default.
func (r *Registry) SetServer(name, url, database, login string) *Server {
	r.normalize()
	s := &Server{URL: url, Database: database, Login: login}
	r.Servers[name] = s
	if r.Preferences.DefaultServer == "" {
		r.Preferences.DefaultServer = name
	}
	return s
}

// RemoveServer deletes a server entry and clears it as default.
func (r *Registry) RemoveServer(name string) bool {
	if _, ok := r.Servers[name]; !ok {
		return false
	}
	delete(r.Servers, name)
	r.normalize()
	return true
}

// UseServer makes a known server the default.
func (r *Registry) UseServer(name string) error {
	if r.Servers[name] == nil {
		return fmt.Errorf("no server named %q", name)
	}
	r.normalize()
	r.Preferences.DefaultServer = name
	return nil
}

// DefaultServer returns the default server entry and its name.
func (r *Registry) DefaultServer() (string, *Server) {
	if r.Preferences == nil || r.Preferences.DefaultServer == "" {
		return "", nil
	}
	name := r.Preferences.DefaultServer
	return name, r.Servers[name]
}

// TouchServer records that a server was just used.
func (r *Registry) TouchServer(name string) {
	if s := r.Servers[name]; s != nil {
		s.LastUsed = time.Now()
	}
}

// RememberServer touches the entry whose URL is url. It reports false when
// no entry matches, in which case there is nothing to save.
func (r *Registry) RememberServer(url string) bool {
	for name, s := range r.Servers {
		if s.URL == url {
			r.TouchServer(name)
			return true
		}
	}
	return false
}

// UpdateBridgeSeen records a bridge sighting. The first bridge seen becomes
// the default.
func (r *Registry) UpdateBridgeSeen(name, address string, tls bool) {
	r.normalize()
	r.Bridges[name] = &Bridge{Address: address, TLS: tls, LastSeen: time.Now()}
	if r.Preferences.DefaultBridge == "" {
		r.Preferences.DefaultBridge = name
	}
}

// DefaultBridgeURL returns the session endpoint of the default bridge, or
// "" when none is set.
func (r *Registry) DefaultBridgeURL() string {
	if r.Preferences == nil {
		return ""
	}
	b := r.Bridges[r.Preferences.DefaultBridge]
	if b == nil {
		return ""
	}
	scheme := "ws"
	if b.TLS {
		scheme = "wss"
	}
	return scheme + "://" + b.Address + discovery.DefaultSessionPath
}

// LoadRegistry returns the process-wide registry, reading it on first use.
// A missing file yields a default registry.
func LoadRegistry() (*Registry, error) {
	globalRegistryOnce.Do(func() {
		globalRegistry, globalRegistryErr = loadRegistryFromDisk()
	})
	return globalRegistry, globalRegistryErr
}

// GetGlobalRegistry is LoadRegistry.
func GetGlobalRegistry() (*Registry, error) {
	return LoadRegistry()
}

func loadRegistryFromDisk() (*Registry, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	fileMutex.Lock()
	data, err := os.ReadFile(path)
	fileMutex.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if r.Version != registryVersion {
		return nil, fmt.Errorf("unsupported config version: %d (expected %d)", r.Version, registryVersion)
	}
	r.normalize()
	return &r, nil
}

// Save writes the registry atomically: a temporary file next to the target
// is renamed over it.
func (r *Registry) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	body, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data := append([]byte(fmt.Sprintf(fileHeader, path)), body...)

	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// CreateDefaultConfig writes a registry pointing at a local demo backend.
func CreateDefaultConfig() error {
	r := NewRegistry()
	r.SetServer("demo", "http://127.0.0.1:8069", "demo", "admin")
	return r.Save()
}
