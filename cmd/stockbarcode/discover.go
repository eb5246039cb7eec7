package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhma/stockbarcode/internal/config"
	"github.com/mhma/stockbarcode/internal/discovery"
	"github.com/mhma/stockbarcode/internal/logging"
	"github.com/mhma/stockbarcode/internal/ui"
)

var (
	discoverTimeout int
	discoverSave    bool
)

func init() {
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 5, "Scan timeout in seconds")
	discoverCmd.Flags().BoolVar(&discoverSave, "save", true, "Remember the bridges found")
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find scanner bridges and demo backends on the network",
	Long: `Browse mDNS for stockbarcode bridges and backends and list them.

Bridges found are remembered in the configuration file; the first one
becomes the default bridge for sessions.`,
	Example: `  stockbarcode discover
  stockbarcode discover --timeout 10`,
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeFromEnv(); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	p := ui.NewPrinter(os.Stdout)
	p.Println(fmt.Sprintf("Browsing for services (timeout: %ds)...", discoverTimeout))

	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(discoverTimeout) * time.Second

	var found []*discovery.Service
	for _, kind := range []discovery.Kind{discovery.KindBridge, discovery.KindBackend} {
		services, err := scanner.Browse(ctx, kind)
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		found = append(found, services...)
	}

	if len(found) == 0 {
		p.PrintWarning("Nothing found", map[string]string{
			"Hint": "Check that the bridge runs with --instance and that mDNS is allowed on this network",
		})
		return nil
	}

	rows := make([][]string, 0, len(found))
	for _, s := range found {
		rows = append(rows, []string{string(s.Kind), s.Instance, s.URL(), s.GetMetadata("version")})
	}
	p.Newline()
	p.PrintTable([]string{"Kind", "Instance", "URL", "Version"}, rows)

	if discoverSave {
		if err := rememberBridges(ctx, found); err != nil {
			logging.Warn("Failed to save discovered bridges", zap.Error(err))
		}
	}
	return nil
}

func rememberBridges(ctx context.Context, found []*discovery.Service) error {
	reg, err := config.GetGlobalRegistry()
	if err != nil {
		return err
	}
	changed := false
	for _, s := range found {
		if s.Kind != discovery.KindBridge {
			continue
		}
		reg.UpdateBridgeSeen(s.Instance, s.Address(), s.TLS())
		changed = true
	}
	if !changed || ctx.Err() != nil {
		return nil
	}
	return reg.Save()
}
