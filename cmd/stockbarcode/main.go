// Stockbarcode is the terminal client for warehouse barcode sessions.
//
// It opens a transfer or an inventory count on the stock backend and lets
// the operator process it with a barcode scanner: a keyboard-wedge scanner
// typing into the terminal, or networked scanners reaching the session
// through a stockbarcode-bridge.
//
// Usage:
//
//	stockbarcode session picking <id> [flags]
//	stockbarcode session inventory [flags]
//
// See 'stockbarcode --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/mhma/stockbarcode/internal/config"
	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/rpc"
	"github.com/mhma/stockbarcode/internal/ui"
	"github.com/mhma/stockbarcode/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// reportError prints backend connectivity failures as a boxed result with
// hints, anything else as a plain line.
func reportError(err error) {
	if !rpc.IsNetworkError(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	ui.NewPrinter(os.Stderr).PrintError("Backend unreachable", err, []string{
		"Check the server URL with 'stockbarcode config show'",
		"Run 'stockbarcode discover' to look for backends on this network",
		"Raise --timeout or --retries on slow links",
	})
}

var rootCmd = &cobra.Command{
	Use:   "stockbarcode",
	Short: "Warehouse barcode scanning client",
	Long: `A terminal client for processing transfers and inventory counts with a
barcode scanner.

Connection settings come from the configuration file, STOCKBARCODE_*
environment variables and flags, in increasing order of precedence. Use
'stockbarcode config add-server' to remember a backend.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Example: `  # Process delivery 12 on the default server
  stockbarcode session picking 12

  # Count stock, scans arriving through a bridge
  stockbarcode session inventory --bridge ws://dock-3.local:8780/ws/session

  # Apply scans without the interactive screen
  stockbarcode scan picking 12 601647855631 601647855631 --validate`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.String("server", "", "Backend URL (e.g. https://erp.example.com)")
	pf.String("database", "", "Backend database")
	pf.String("login", "", "Backend login")
	pf.String("password", "", "Backend password (prompted when a login is set and this is empty)")
	pf.String("bridge", "", "Scanner bridge session URL (ws:// or wss://)")
	pf.Bool("play-sound", true, "Ring the terminal bell on scan feedback")
	pf.Int("search-limit", 0, "Maximum product search results")
	pf.Int("scroll-threshold", 0, "Rows a line may be off before the list scrolls")
	pf.Duration("timeout", 0, "Backend request timeout")
	pf.Int("retries", 0, "Retries for backend reads")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-file", "", "Write logs to this file")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stockbarcode %s (commit: %s)\n", version.Version, version.Commit)
	},
}

// signalContext is cancelled on interrupt or termination.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadSettings resolves the effective settings for cmd. Flags that were not
// set on the command line do not override lower layers.
func loadSettings(cmd *cobra.Command) (*config.Settings, *config.Registry, error) {
	reg, err := config.GetGlobalRegistry()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	settings, err := config.LoadSettings(reg, changedFlags(cmd))
	if err != nil {
		return nil, nil, err
	}
	return settings, reg, nil
}

// changedFlags returns a flag set holding only the flags the operator set,
// so unset flags leave defaults and the registry in charge.
func changedFlags(cmd *cobra.Command) *pflag.FlagSet {
	set := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		set.AddFlag(f)
	})
	return set
}

// setupLogging initializes logging. Interactive commands own the terminal,
// so their logs only go to a file.
func setupLogging(s *config.Settings, interactive bool) (cleanup func(), err error) {
	if s.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(s.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(s.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		level := s.LogLevel
		if level == "" {
			level = "info"
		}
		logging.InitializeWithOutput(level, f)
		return func() {
			logging.Sync()
			_ = f.Close()
		}, nil
	}
	if interactive {
		logging.InitializeWithOutput("", nil)
		return func() {}, nil
	}
	if err := logging.Initialize(s.LogLevel); err != nil {
		return nil, err
	}
	return logging.Sync, nil
}

// connect builds a backend client and logs in when a login is configured.
func connect(ctx context.Context, s *config.Settings) (*rpc.Client, error) {
	client := rpc.NewClient(s.ServerURL)
	if s.Timeout > 0 {
		client.SetTimeout(s.Timeout)
	}
	client.SetRetry(s.Retries, rpc.DefaultRetryDelay)

	if s.Login == "" {
		return client, nil
	}
	password := s.Password
	if password == "" && ui.IsTerminal() {
		p, err := promptPassword(s.Login, s.ServerURL)
		if err != nil {
			return nil, err
		}
		password = p
	}
	client.SetAuth(s.Database, s.Login, password)
	if _, err := client.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("login to %s failed: %s", s.ServerURL, rpc.GetShortErrorMessage(err))
	}
	return client, nil
}

func promptPassword(login, server string) (string, error) {
	fmt.Fprintf(os.Stderr, "Password for %s on %s: ", login, server)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
