package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Node.ListenAddr != ":8080" {
		t.Errorf("listen addr = %s", cfg.Node.ListenAddr)
	}
	if cfg.Node.EnableAgent {
		t.Error("agent should default to disabled")
	}
	if cfg.Feed.CacheTTL != 5*time.Second {
		t.Errorf("cache ttl = %s", cfg.Feed.CacheTTL)
	}
	if cfg.Agent.PollInterval != 5*time.Second {
		t.Errorf("poll interval = %s", cfg.Agent.PollInterval)
	}
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got %v", err)
	}
	if cfg.Node.ListenAddr != ":8080" {
		t.Errorf("defaults not applied: %s", cfg.Node.ListenAddr)
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := writeFile(t, "config.yaml", "node: [not a mapping")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
node:
  listen_addr: ":9090"
  enable_agent: true
authorities:
  vault: "0x1100000000000000000000000000000000000000"
  backend: "0x2200000000000000000000000000000000000000"
feed:
  stock_api_key: "yaml-key"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.ListenAddr != ":9090" {
		t.Errorf("listen addr = %s", cfg.Node.ListenAddr)
	}
	if !cfg.Node.EnableAgent {
		t.Error("enable_agent not read")
	}
	if cfg.Authorities.Vault != "0x1100000000000000000000000000000000000000" {
		t.Errorf("vault authority = %s", cfg.Authorities.Vault)
	}
	if cfg.Feed.StockAPIKey != "yaml-key" {
		t.Errorf("stock api key = %s", cfg.Feed.StockAPIKey)
	}
	// Untouched fields keep their defaults.
	if cfg.Node.DataDir != "data/ledger" {
		t.Errorf("data dir = %s", cfg.Node.DataDir)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
node:
  listen_addr: ":9090"
feed:
  stock_api_key: "yaml-key"
`)
	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("ALPACA_API_KEY_ID", "env-key")
	t.Setenv("ENABLE_AGENT", "true")
	t.Setenv("AGENT_POLL_INTERVAL_MS", "250")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "no.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Node.ListenAddr != ":7070" {
		t.Errorf("env did not override yaml: %s", cfg.Node.ListenAddr)
	}
	if cfg.Feed.StockAPIKey != "env-key" {
		t.Errorf("env did not override yaml: %s", cfg.Feed.StockAPIKey)
	}
	if !cfg.Node.EnableAgent {
		t.Error("ENABLE_AGENT not applied")
	}
	if cfg.Agent.PollInterval != 250*time.Millisecond {
		t.Errorf("poll interval = %s", cfg.Agent.PollInterval)
	}
}

func TestDotEnvFile(t *testing.T) {
	envPath := writeFile(t, "test.env", "VAULT_AUTHORITY=0xAB00000000000000000000000000000000000000\n")
	t.Cleanup(func() { os.Unsetenv("VAULT_AUTHORITY") })

	cfg, err := Load("", envPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Authorities.Vault != "0xAB00000000000000000000000000000000000000" {
		t.Errorf("vault authority from .env = %s", cfg.Authorities.Vault)
	}
}
