package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
)

const (
	// BridgeServiceType is advertised by scanner bridges
	BridgeServiceType = "_stockbarcode-bridge._tcp"

	// BackendServiceType is advertised by demo and proxy backends
	BackendServiceType = "_stockbarcode-backend._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultSessionPath is where bridges accept session subscriptions
	DefaultSessionPath = "/ws/session"
)

// ServiceType returns the mDNS service type for kind
func ServiceType(kind Kind) string {
	if kind == KindBackend {
		return BackendServiceType
	}
	return BridgeServiceType
}

// Scanner handles mDNS service discovery
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Browse collects every service of kind that answers before the timeout
func (s *Scanner) Browse(ctx context.Context, kind Kind) ([]*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu       sync.Mutex
		services []*Service
		done     = make(chan struct{})
	)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		defer close(done)
		for entry := range entries {
			if svc := parseServiceEntry(kind, entry); svc != nil {
				mu.Lock()
				services = append(services, svc)
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType(kind), ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// The resolver closes entries once the context ends.
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	logging.Debug("mDNS browse finished",
		zap.String("service", ServiceType(kind)),
		zap.Int("found", len(services)),
	)
	return dedupe(services), nil
}

// WaitFor returns the first service of kind named instance, or the first
// service of kind at all when instance is empty
func (s *Scanner) WaitFor(ctx context.Context, kind Kind, instance string) (*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Service, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			svc := parseServiceEntry(kind, entry)
			if svc == nil || (instance != "" && svc.Instance != instance) {
				continue
			}
			select {
			case found <- svc:
				cancel()
			default:
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType(kind), ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case svc := <-found:
		return svc, nil
	case <-ctx.Done():
		select {
		case svc := <-found:
			return svc, nil
		default:
		}
		if instance == "" {
			return nil, fmt.Errorf("no %s found within %s", kind, s.Timeout)
		}
		return nil, fmt.Errorf("%s %q not found within %s", kind, instance, s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Service
// Returns nil if the entry has no usable address
func parseServiceEntry(kind Kind, entry *zeroconf.ServiceEntry) *Service {
	if entry == nil {
		return nil
	}

	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Service{
		Kind:         kind,
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// dedupe keeps the first answer per instance; responders may answer on
// several interfaces.
func dedupe(in []*Service) []*Service {
	seen := make(map[string]bool, len(in))
	out := make([]*Service, 0, len(in))
	for _, svc := range in {
		key := svc.Instance + "|" + svc.Address()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, svc)
	}
	return out
}

// Advertisement is a running mDNS registration
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers instance as a service of kind on port. Stop the
// returned advertisement on shutdown.
func Advertise(kind Kind, instance string, port int, txt map[string]string) (*Advertisement, error) {
	records := make([]string, 0, len(txt))
	for k, v := range txt {
		records = append(records, k+"="+v)
	}
	server, err := zeroconf.Register(instance, ServiceType(kind), ServiceDomain, port, records, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising service",
		zap.String("service", ServiceType(kind)),
		zap.String("instance", instance),
		zap.Int("port", port),
	)
	return &Advertisement{server: server}, nil
}

// Stop withdraws the advertisement
func (a *Advertisement) Stop() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// QuickScan browses for kind with a 3-second timeout
func QuickScan(ctx context.Context, kind Kind) ([]*Service, error) {
	scanner := NewScanner()
	scanner.Timeout = 3 * time.Second
	return scanner.Browse(ctx, kind)
}
