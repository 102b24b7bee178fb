// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/dopabank/internal/model"
)

// TokenEnv names the environment variable that overrides the bot token.
const TokenEnv = "DOPABANK_TELEGRAM_TOKEN"

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Storage  StorageConfig  `toml:"storage"`
	Rewards  RewardsConfig  `toml:"rewards"`
	Clock    ClockConfig    `toml:"clock"`
	Access   AccessConfig   `toml:"access"`
	Telegram TelegramConfig `toml:"telegram"`
}

// StorageConfig maps persistence settings.
type StorageConfig struct {
	Backend *string `toml:"backend"`
	Path    *string `toml:"path"`
}

// RewardsConfig maps reward catalog settings.
type RewardsConfig struct {
	Scope *string `toml:"scope"`
}

// ClockConfig maps timezone settings.
type ClockConfig struct {
	Timezone *string `toml:"timezone"`
}

// AccessConfig maps the access policy.
type AccessConfig struct {
	Admins   []string `toml:"admins"`
	AllowAll *bool    `toml:"allow-all"`
}

// TelegramConfig maps bot settings.
type TelegramConfig struct {
	Token *string `toml:"token"`
	Debug *bool   `toml:"debug"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return FileConfig{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c FileConfig) Validate() error {
	if c.Storage.Backend != nil {
		if err := ValidateBackend(*c.Storage.Backend); err != nil {
			return err
		}
	}
	if c.Rewards.Scope != nil {
		if _, ok := model.ParseRewardScope(*c.Rewards.Scope); !ok {
			return fmt.Errorf("rewards.scope must be global or per-user, got %q", *c.Rewards.Scope)
		}
	}
	if c.Clock.Timezone != nil {
		if _, err := LoadLocation(*c.Clock.Timezone); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBackend accepts the supported storage backend names.
func ValidateBackend(name string) error {
	switch name {
	case "json", "sqlite":
		return nil
	default:
		return fmt.Errorf("storage.backend must be json or sqlite, got %q", name)
	}
}

// LoadLocation resolves a timezone name. "" and "Local" mean the system zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// TelegramToken returns the bot token, preferring the environment.
func (c FileConfig) TelegramToken() string {
	if v := strings.TrimSpace(os.Getenv(TokenEnv)); v != "" {
		return v
	}
	if c.Telegram.Token != nil {
		return strings.TrimSpace(*c.Telegram.Token)
	}
	return ""
}
