package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Kind is the role a discovered service plays.
type Kind string

const (
	// KindBridge is a scanner bridge sessions subscribe to
	KindBridge Kind = "bridge"
	// KindBackend is a stock backend serving the barcode routes
	KindBackend Kind = "backend"
)

// Service represents a stockbarcode service found on the network
type Service struct {
	// Kind tells bridges from backends
	Kind Kind

	// Instance is the advertised instance name (e.g., "dock-3")
	Instance string

	// Hostname is the mDNS hostname (e.g., "scanner-hub.local.")
	Hostname string

	// IP is the service address, IPv4 preferred
	IP string

	// Port is the TCP port
	Port int

	// Metadata contains the TXT record data
	// Common fields: "path=/ws/session", "tls=1", "version=1.2.0"
	Metadata map[string]string

	// DiscoveredAt is when the service was seen
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the service
func (s *Service) String() string {
	return fmt.Sprintf("%s %s (%s) at %s", s.Kind, s.Instance, s.Hostname, s.Address())
}

// Address returns host:port
func (s *Service) Address() string {
	return net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// TLS reports whether the service advertised tls=1
func (s *Service) TLS() bool {
	v := s.GetMetadata("tls")
	return v == "1" || v == "true"
}

// URL returns the address clients should dial: a websocket URL for bridges
// and an HTTP base URL for backends.
func (s *Service) URL() string {
	if s.Kind == KindBridge {
		scheme := "ws"
		if s.TLS() {
			scheme = "wss"
		}
		path := s.GetMetadata("path")
		if path == "" {
			path = DefaultSessionPath
		}
		return fmt.Sprintf("%s://%s%s", scheme, s.Address(), path)
	}
	scheme := "http"
	if s.TLS() {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, s.Address())
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}
