// Stockbarcode-demo serves a demo stock backend for trying stockbarcode
// without an ERP.
//
// The warehouse comes from a YAML fixture (a built-in one by default) and is
// kept in memory; restarting the server resets it.
//
// Usage:
//
//	stockbarcode-demo [flags]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/demo"
	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	addr        string
	fixturePath string
	database    string
	login       string
	password    string
	instance    string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "stockbarcode-demo",
	Short: "Demo stock backend",
	Long: `A stand-in stock backend serving the barcode routes from an in-memory
warehouse.

Without --login any credentials are accepted and no session is required.`,
	Version:      version.Version,
	SilenceUsage: true,
	Example: `  # Built-in warehouse on port 8069
  stockbarcode-demo

  # Own fixture, login required, advertised over mDNS
  stockbarcode-demo --fixture warehouse.yaml --login admin --password admin --instance demo`,
	RunE: run,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	f := rootCmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8069", "Listen address")
	f.StringVar(&fixturePath, "fixture", "", "Warehouse fixture file (default: built-in)")
	f.StringVar(&database, "database", "demo", "Database name reported and checked on login")
	f.StringVar(&login, "login", "", "Required login (empty accepts anyone)")
	f.StringVar(&password, "password", "", "Required password")
	f.StringVar(&instance, "instance", "", "mDNS instance name (empty disables advertising)")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func run(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	defer logging.Sync()
	if logging.ParseLevel(logLevel) != zap.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	fixture := demo.DefaultFixture()
	if fixturePath != "" {
		var err error
		if fixture, err = demo.LoadFixture(fixturePath); err != nil {
			return err
		}
	}
	logging.Info("Demo warehouse loaded",
		zap.Int("products", len(fixture.Products)),
		zap.Int("pickings", len(fixture.Pickings)),
		zap.Int("quants", len(fixture.Quants)),
	)

	srv := demo.NewServer(demo.NewStore(fixture), demo.Options{
		Database: database,
		Login:    login,
		Password: password,
		Instance: instance,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx, addr)
}
