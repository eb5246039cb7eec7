package bridge

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/discovery"
	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/version"
)

// Paths served by the bridge.
const (
	ScannerPath = "/ws/scanner"
	SessionPath = discovery.DefaultSessionPath
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"
)

// Config holds the bridge configuration
type Config struct {
	Host     string
	Port     int
	CertPath string // TLS is enabled when both paths are set
	KeyPath  string
	Instance string // mDNS instance name; empty disables advertising
}

// Server is the scanner bridge: an HTTP server carrying the hub's websocket
// endpoints and the metrics endpoint.
type Server struct {
	config    *Config
	hub       *Hub
	metrics   *Metrics
	tlsConfig *tls.Config
	http      *http.Server
	listener  net.Listener
	ad        *discovery.Advertisement
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	var tlsConfig *tls.Config
	if config.CertPath != "" || config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	metrics := NewMetrics()
	s := &Server{
		config:    config,
		hub:       NewHub(metrics),
		metrics:   metrics,
		tlsConfig: tlsConfig,
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the bridge's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ScannerPath, s.hub.ServeScanner)
	mux.HandleFunc(SessionPath, s.hub.ServeSession)
	mux.Handle(MetricsPath, s.metrics.Handler())
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		scanners, sessions := s.hub.Counts()
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"ok","scanners":%d,"sessions":%d}`, scanners, sessions)
	})
	return logRequests(mux)
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens and serves until ctx is cancelled or a shutdown signal
// arrives
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
	}
	s.listener = listener

	logging.Info("Starting scanner bridge",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", s.tlsConfig != nil),
		zap.String("version", version.Version),
	)

	if s.config.Instance != "" {
		port := listener.Addr().(*net.TCPAddr).Port
		txt := map[string]string{"path": SessionPath, "version": version.Version}
		if s.tlsConfig != nil {
			txt["tls"] = "1"
		}
		ad, err := discovery.Advertise(discovery.KindBridge, s.config.Instance, port, txt)
		if err != nil {
			logging.Warn("mDNS advertisement failed, continuing without it", zap.Error(err))
		} else {
			s.ad = ad
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.http.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping bridge...")
	case <-ctx.Done():
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Addr returns the listening address once Start has been called.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the bridge
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down bridge...")
	s.ad.Stop()

	// Hijacked websocket connections are not tracked by http.Server.
	err := s.http.Shutdown(ctx)
	s.hub.Close()
	if err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		_ = s.http.Close()
	} else {
		logging.Info("All connections closed gracefully")
	}

	logging.Sync()
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.Method, r.URL.Path, r.RemoteAddr, rec.status, time.Since(start))
	})
}
