package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (STOCKBARCODE_SERVER_URL, ...).
const EnvPrefix = "STOCKBARCODE"

// Settings is the effective configuration of one command invocation.
type Settings struct {
	ServerURL string `mapstructure:"server_url" validate:"required,url"`
	Database  string `mapstructure:"database"`
	Login     string `mapstructure:"login"`
	Password  string `mapstructure:"password"`

	BridgeURL string `mapstructure:"bridge_url" validate:"omitempty,url"`

	PlaySound       bool          `mapstructure:"play_sound"`
	SearchLimit     int           `mapstructure:"search_limit" validate:"min=1,max=10000"`
	ScrollThreshold int           `mapstructure:"scroll_threshold" validate:"min=0"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"min=0"`
	Retries         int           `mapstructure:"retries" validate:"min=0,max=10"`

	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFile  string `mapstructure:"log_file"`
}

// flagKeys maps command-line flag names to settings keys.
var flagKeys = map[string]string{
	"server":           "server_url",
	"database":         "database",
	"login":            "login",
	"password":         "password",
	"bridge":           "bridge_url",
	"play-sound":       "play_sound",
	"search-limit":     "search_limit",
	"scroll-threshold": "scroll_threshold",
	"timeout":          "timeout",
	"retries":          "retries",
	"log-level":        "log_level",
	"log-file":         "log_file",
}

// LoadSettings resolves settings from, lowest to highest precedence:
// built-in defaults, the registry (default server and preferences),
// STOCKBARCODE_* environment variables, and flags that were set.
// The result is validated.
func LoadSettings(reg *Registry, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("server_url", "")
	v.SetDefault("database", "")
	v.SetDefault("login", "")
	v.SetDefault("password", "")
	v.SetDefault("bridge_url", "")
	v.SetDefault("play_sound", true)
	v.SetDefault("search_limit", defaultSearchLimit)
	v.SetDefault("scroll_threshold", defaultScrollThreshold)
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("retries", 2)
	v.SetDefault("log_level", "")
	v.SetDefault("log_file", "")

	if reg != nil {
		if err := v.MergeConfigMap(registryLayer(reg)); err != nil {
			return nil, fmt.Errorf("merge registry settings: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func registryLayer(reg *Registry) map[string]any {
	layer := map[string]any{}
	if p := reg.Preferences; p != nil {
		layer["play_sound"] = p.PlaySound
		if p.SearchLimit > 0 {
			layer["search_limit"] = p.SearchLimit
		}
		if p.ScrollThreshold > 0 {
			layer["scroll_threshold"] = p.ScrollThreshold
		}
		if p.LogLevel != "" {
			layer["log_level"] = p.LogLevel
		}
		if url := reg.DefaultBridgeURL(); url != "" {
			layer["bridge_url"] = url
		}
	}
	if _, srv := reg.DefaultServer(); srv != nil {
		layer["server_url"] = srv.URL
		layer["database"] = srv.Database
		layer["login"] = srv.Login
	}
	return layer
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every failing field.
func (s *Settings) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate settings: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	key := fe.Field()
	for _, k := range flagKeys {
		if strings.EqualFold(strings.ReplaceAll(k, "_", ""), fe.Field()) {
			key = k
			break
		}
	}
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "url":
		return key + " must be a valid URL"
	case "min":
		return fmt.Sprintf("%s must be at least %s", key, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", key, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", key, fe.Tag())
	}
}
