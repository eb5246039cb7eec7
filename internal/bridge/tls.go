package bridge

import (
	"crypto/tls"
	"fmt"

	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/logging"
)

// NewTLSConfig loads a certificate pair for the bridge listener
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("both certificate and key are required for TLS")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)
	return NewTLSConfigFromCertificate(cert), nil
}

// NewTLSConfigFromCertificate builds the listener config around cert.
// Handheld scanners commonly stop at TLS 1.2, so that is the floor.
func NewTLSConfigFromCertificate(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}
}

// GetTLSInfo returns human-readable TLS configuration information
func GetTLSInfo(config *tls.Config) map[string]interface{} {
	return map[string]interface{}{
		"min_version": tls.VersionName(config.MinVersion),
		"num_certs":   len(config.Certificates),
		"alpn":        config.NextProtos,
	}
}
