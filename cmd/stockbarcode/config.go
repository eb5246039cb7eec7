package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mhma/stockbarcode/internal/config"
	"github.com/mhma/stockbarcode/internal/ui"
)

var (
	serverDatabase string
	serverLogin    string
	serverDefault  bool
)

func init() {
	addServerCmd.Flags().StringVar(&serverDatabase, "database", "", "Backend database")
	addServerCmd.Flags().StringVar(&serverLogin, "login", "", "Backend login")
	addServerCmd.Flags().BoolVar(&serverDefault, "default", false, "Make this the default server")

	configCmd.AddCommand(configShowCmd, addServerCmd, removeServerCmd, useServerCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage known servers and preferences",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		reg, err := config.GetGlobalRegistry()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		p := ui.NewPrinter(os.Stdout)
		defaultServer, _ := reg.DefaultServer()
		params := map[string]string{"File": path}
		if prefs := reg.Preferences; prefs != nil {
			params["Play sound"] = fmt.Sprint(prefs.PlaySound)
			params["Search limit"] = fmt.Sprint(prefs.SearchLimit)
			params["Scroll threshold"] = fmt.Sprint(prefs.ScrollThreshold)
			if prefs.DefaultBridge != "" {
				params["Default bridge"] = prefs.DefaultBridge
			}
		}
		p.PrintHeader("Configuration", "stockbarcode config show", params)

		names := make([]string, 0, len(reg.Servers))
		for name := range reg.Servers {
			names = append(names, name)
		}
		sort.Strings(names)
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			s := reg.Servers[name]
			marker := ""
			if name == defaultServer {
				marker = ui.HighlightMarker
			}
			lastUsed := "never"
			if !s.LastUsed.IsZero() {
				lastUsed = s.LastUsed.Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{marker, name, s.URL, s.Database, s.Login, lastUsed})
		}
		if len(rows) == 0 {
			p.PrintNotice("info", "No server configured. Add one with 'stockbarcode config add-server'.")
			return nil
		}
		p.PrintTable([]string{"", "Name", "URL", "Database", "Login", "Last used"}, rows)
		return nil
	},
}

var addServerCmd = &cobra.Command{
	Use:     "add-server <name> <url>",
	Short:   "Remember a backend",
	Example: `  stockbarcode config add-server main https://erp.example.com --database prod --login picker1 --default`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.GetGlobalRegistry()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		reg.SetServer(args[0], args[1], serverDatabase, serverLogin)
		if serverDefault {
			reg.Preferences.DefaultServer = args[0]
		}
		if err := reg.Save(); err != nil {
			return err
		}
		fmt.Printf("Server %q saved.\n", args[0])
		return nil
	},
}

var removeServerCmd = &cobra.Command{
	Use:   "remove-server <name>",
	Short: "Forget a backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.GetGlobalRegistry()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if !reg.RemoveServer(args[0]) {
			return fmt.Errorf("no server named %q", args[0])
		}
		return reg.Save()
	},
}

var useServerCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a known backend the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := config.GetGlobalRegistry()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := reg.UseServer(args[0]); err != nil {
			return err
		}
		return reg.Save()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration pointing at a local demo backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.CreateDefaultConfig(); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}
