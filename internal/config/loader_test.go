package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "serve"

[postgres]
host = "db.internal"
database = "predictd"
user = "predictd"
password = "secret"

[redis]
addr = "redis.internal:6379"

[server]
port = 9090

[game]
bet_window = "45s"
run_window = "90s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != ModeServe {
		t.Errorf("mode = %q, want serve", cfg.Mode)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("postgres host = %q", cfg.Postgres.Host)
	}
	if got := cfg.Game.ResolveAfter(); got != 135*time.Second {
		t.Errorf("resolve after = %v, want 2m15s", got)
	}

	// Untouched sections keep their defaults.
	if cfg.Resolver.AssetID == "" {
		t.Error("resolver asset id default lost")
	}
	if cfg.Resolver.PollInterval.Duration <= 0 {
		t.Error("resolver poll interval default lost")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
mode = "serve"

[postgres]
host = "db.internal"

[server]
port = 8080
`)

	t.Setenv("PREDICTD_SERVER_PORT", "7070")
	t.Setenv("PREDICTD_POSTGRES_PASSWORD", "from-env")
	t.Setenv("PREDICTD_MODE", "full")
	t.Setenv("PREDICTD_GAME_BET_WINDOW", "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Postgres.Password != "from-env" {
		t.Errorf("password = %q, want env override", cfg.Postgres.Password)
	}
	if cfg.Mode != ModeFull {
		t.Errorf("mode = %q, want full", cfg.Mode)
	}
	if cfg.Game.BetWindow.Duration != 2*time.Minute {
		t.Errorf("bet window = %v, want 2m", cfg.Game.BetWindow.Duration)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Load succeeded on a missing file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Database = "predictd"
	cfg.Postgres.User = "predictd"
	cfg.Redis.Addr = "localhost:6379"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate on complete config: %v", err)
	}

	bad := cfg
	bad.Mode = "sideways"
	if err := bad.Validate(); err == nil {
		t.Error("Validate accepted an unknown mode")
	}

	bad = cfg
	bad.LogLevel = "shout"
	if err := bad.Validate(); err == nil {
		t.Error("Validate accepted an unknown log level")
	}
}
