package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/barcode"
	"github.com/mhma/stockbarcode/internal/bridge"
	"github.com/mhma/stockbarcode/internal/config"
	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/rpc"
	"github.com/mhma/stockbarcode/internal/session"
	"github.com/mhma/stockbarcode/internal/tui"
)

var (
	sessionName   string
	sessionNoAlt  bool
	resetOnReload bool
)

func init() {
	sessionCmd.Flags().StringVar(&sessionName, "name", "", "Name scanners use to address this session on the bridge")
	sessionCmd.Flags().BoolVar(&sessionNoAlt, "no-alt-screen", false, "Draw inline instead of on the alternate screen")
	sessionCmd.Flags().BoolVar(&resetOnReload, "reset-filter-on-refresh", false, "Clear the product search after every refresh")

	rootCmd.AddCommand(sessionCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session <picking|inventory> [id]",
	Short: "Open an interactive scanning session",
	Long: `Open a transfer or an inventory count and process it with a scanner.

A keyboard-wedge scanner types straight into the line list. With --bridge,
scans from networked scanners are delivered to the session as well and
feedback vibrations go back to the scanner that produced the last scan.`,
	Example: `  # Process transfer 12
  stockbarcode session picking 12

  # Count stock, addressed as dock-3 on the bridge
  stockbarcode session inventory --bridge ws://hub.local:8780/ws/session --name dock-3`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSession,
}

// parseSubject turns the command arguments into the record to open.
func parseSubject(args []string) (session.Subject, error) {
	switch args[0] {
	case "picking", "transfer", barcode.ModelPicking:
		if len(args) < 2 {
			return session.Subject{}, fmt.Errorf("a transfer id is required")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			return session.Subject{}, fmt.Errorf("invalid transfer id %q", args[1])
		}
		return session.Subject{ResModel: barcode.ModelPicking, ResID: id}, nil
	case "inventory", "quants", barcode.ModelQuant:
		if len(args) > 1 {
			return session.Subject{}, fmt.Errorf("an inventory count takes no id")
		}
		return session.Subject{ResModel: barcode.ModelQuant}, nil
	default:
		return session.Subject{}, fmt.Errorf("unknown record type %q (use picking or inventory)", args[0])
	}
}

func sessionOptions(s *config.Settings, client *rpc.Client) session.Options {
	return session.Options{
		Factories:            barcode.Factories(),
		Transport:            client,
		Searcher:             barcode.NewProductSearcher(client),
		SearchLimit:          s.SearchLimit,
		ScrollThreshold:      float64(s.ScrollThreshold),
		ResetFilterOnRefresh: resetOnReload,
	}
}

func runSession(cmd *cobra.Command, args []string) error {
	subject, err := parseSubject(args)
	if err != nil {
		return err
	}
	settings, reg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cleanup, err := setupLogging(settings, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	client, err := connect(ctx, settings)
	if err != nil {
		return err
	}
	rememberServer(reg, settings.ServerURL)

	cfg := tui.RunConfig{AltScreen: !sessionNoAlt}
	if settings.PlaySound {
		cfg.Bell = os.Stdout
	}
	if settings.BridgeURL != "" {
		b, err := dialBridge(ctx, settings.BridgeURL, sessionName)
		if err != nil {
			return err
		}
		defer b.Close()
		cfg.Bridge = b
	}

	return tui.Run(ctx, subject, sessionOptions(settings, client), cfg)
}

func dialBridge(ctx context.Context, url, name string) (*bridge.SessionClient, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	b, err := bridge.DialSession(dialCtx, url, name)
	if err != nil {
		return nil, err
	}
	logging.Info("Connected to scanner bridge", zap.String("url", url), zap.String("id", b.ID()))
	return b, nil
}

// rememberServer marks the registry entry for url as used.
func rememberServer(reg *config.Registry, url string) {
	if !reg.RememberServer(url) {
		return
	}
	if err := reg.Save(); err != nil {
		logging.Warn("Failed to save configuration", zap.Error(err))
	}
}
