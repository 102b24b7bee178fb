package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Backend != nil || cfg.Rewards.Scope != nil {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadConfigSections(t *testing.T) {
	path := writeConfig(t, `
[storage]
backend = "sqlite"
path = "/tmp/dopabank.db"

[rewards]
scope = "global"

[clock]
timezone = "UTC"

[access]
admins = ["42", "alice"]
allow-all = false

[telegram]
token = "abc"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Backend == nil || *cfg.Storage.Backend != "sqlite" {
		t.Fatalf("unexpected backend: %v", cfg.Storage.Backend)
	}
	if cfg.Rewards.Scope == nil || *cfg.Rewards.Scope != "global" {
		t.Fatalf("unexpected scope: %v", cfg.Rewards.Scope)
	}
	if len(cfg.Access.Admins) != 2 || cfg.Access.AllowAll == nil || *cfg.Access.AllowAll {
		t.Fatalf("unexpected access: %+v", cfg.Access)
	}
	t.Setenv(TokenEnv, "")
	if got := cfg.TelegramToken(); got != "abc" {
		t.Fatalf("expected token from file, got %q", got)
	}
	t.Setenv(TokenEnv, "from-env")
	if got := cfg.TelegramToken(); got != "from-env" {
		t.Fatalf("expected token from env, got %q", got)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"backend", "[storage]\nbackend = \"redis\"\n", "storage.backend"},
		{"scope", "[rewards]\nscope = \"team\"\n", "rewards.scope"},
		{"timezone", "[clock]\ntimezone = \"Mars/Olympus\"\n", "invalid timezone"},
		{"unknown", "[practice]\nwords = 3\n", "unknown config keys"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_DATA_HOME", "/data")
	if got := DefaultConfigPath(); got != filepath.Join("/cfg", "dopabank", "config.toml") {
		t.Fatalf("unexpected config path %q", got)
	}
	if got := DefaultStoragePath("json"); got != filepath.Join("/data", "dopabank") {
		t.Fatalf("unexpected json path %q", got)
	}
	if got := DefaultStoragePath("sqlite"); got != filepath.Join("/data", "dopabank", "dopabank.db") {
		t.Fatalf("unexpected sqlite path %q", got)
	}
}
