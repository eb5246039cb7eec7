// Package config provides user configuration management for stockbarcode.
//
// Two layers live here. The Registry is a YAML file holding the backends and
// scanner bridges the operator has used plus their preferences. Settings is the
// effective configuration for one command, resolved by LoadSettings from
// defaults, the registry, STOCKBARCODE_* environment variables and flags, and
// validated before use.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/stockbarcode/config.yaml or $HOME/.config/stockbarcode/config.yaml
//   - macOS: $HOME/.config/stockbarcode/config.yaml
//   - Windows: %LOCALAPPDATA%\stockbarcode\config.yaml
//
// STOCKBARCODE_CONFIG overrides the location.
//
// # Security
//
// Passwords are never written to the registry. They come from --password,
// STOCKBARCODE_PASSWORD or an interactive prompt.
//
// # Usage Example
//
//	reg, err := config.LoadRegistry()
//	if err != nil {
//	    return err
//	}
//	settings, err := config.LoadSettings(reg, cmd.Flags())
//	if err != nil {
//	    return err
//	}
//
//	reg.TouchServer("main")
//	_ = reg.Save()
//
// # File Format
//
//	version: 1
//	servers:
//	  main:
//	    url: https://erp.example.com
//	    database: prod
//	    login: picker
//	bridges:
//	  dock-3:
//	    address: 10.0.0.12:8765
//	preferences:
//	  play_sound: true
//	  search_limit: 200
//	  scroll_threshold: 1
//	  default_server: main
//
// # Thread Safety
//
// Registry file operations are serialised by a package mutex. Registry values
// themselves are not synchronised.
package config
