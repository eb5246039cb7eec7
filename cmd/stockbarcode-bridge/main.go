// Stockbarcode-bridge relays scans from networked barcode scanners to
// scanning sessions.
//
// Scanners connect to /ws/scanner and sessions to /ws/session. Every scan is
// delivered to the sessions it addresses, and sessions can send haptic
// feedback back to the scanner that produced the latest scan. Prometheus
// metrics are served on /metrics.
//
// Usage:
//
//	stockbarcode-bridge serve [flags]
//	stockbarcode-bridge push <barcode> [flags]
//
// See 'stockbarcode-bridge --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mhma/stockbarcode/internal/bridge"
	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stockbarcode-bridge",
	Short: "Scanner bridge for stockbarcode sessions",
	Long: `A WebSocket relay between networked barcode scanners and stockbarcode
sessions.

Scanners push barcodes, sessions receive them. A scanner may address one
named session; otherwise every connected session receives the scan.`,
	Version:      version.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(versionCmd)
}

var (
	certPath string
	keyPath  string
	host     string
	port     int
	instance string
	logLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge",
	Long: `Start the scanner bridge.

TLS is enabled when both --cert and --key are given. With --instance the
bridge is advertised over mDNS so 'stockbarcode discover' can find it.`,
	Example: `  # Plain WebSocket on the default port
  stockbarcode-bridge serve

  # TLS, advertised as dock-3
  stockbarcode-bridge serve --cert fullchain.pem --key privkey.pem --instance dock-3`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&certPath, "cert", "", "Path to TLS certificate file")
	serveCmd.Flags().StringVar(&keyPath, "key", "", "Path to TLS private key file")
	serveCmd.Flags().StringVar(&host, "host", "", "Listen address (empty = all interfaces)")
	serveCmd.Flags().IntVar(&port, "port", 8780, "Listen port")
	serveCmd.Flags().StringVar(&instance, "instance", "", "mDNS instance name (empty disables advertising)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if (certPath != "") != (keyPath != "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}
	if certPath != "" {
		if _, err := os.Stat(certPath); os.IsNotExist(err) {
			return fmt.Errorf("certificate file not found: %s", certPath)
		}
		if _, err := os.Stat(keyPath); os.IsNotExist(err) {
			return fmt.Errorf("private key file not found: %s", keyPath)
		}
	}
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}

	srv, err := bridge.New(&bridge.Config{
		Host:     host,
		Port:     port,
		CertPath: certPath,
		KeyPath:  keyPath,
		Instance: instance,
	})
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}
	return srv.Start(context.Background())
}

var (
	pushURL     string
	pushSession string
	pushTimeout time.Duration
)

var pushCmd = &cobra.Command{
	Use:   "push <barcode>",
	Short: "Send one scan through a bridge",
	Long: `Connect to a bridge as a scanner, send one barcode and print how many
sessions received it. Useful to test a session without a scanner.`,
	Example: `  stockbarcode-bridge push 601647855631
  stockbarcode-bridge push WH-SHELF-1 --url ws://hub.local:8780/ws/scanner --session dock-3`,
	Args: cobra.ExactArgs(1),
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushURL, "url", "ws://127.0.0.1:8780"+bridge.ScannerPath, "Bridge scanner URL")
	pushCmd.Flags().StringVar(&pushSession, "session", "", "Deliver only to the session with this name")
	pushCmd.Flags().DurationVar(&pushTimeout, "timeout", 5*time.Second, "Time to wait for the acknowledgement")
}

func runPush(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeFromEnv(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	ack, err := bridge.PushScan(ctx, pushURL, args[0], pushSession)
	if err != nil {
		return err
	}
	fmt.Printf("Scan %s delivered to %d session(s)\n", ack.ID, ack.Delivered)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stockbarcode-bridge %s (commit: %s)\n", version.Version, version.Commit)
	},
}
