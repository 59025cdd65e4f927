package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hookrelay.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.MongoDB.Database != "hookrelay" {
		t.Errorf("database = %q, want hookrelay", cfg.MongoDB.Database)
	}
	if cfg.Dispatch.Concurrency != 5 || cfg.Dispatch.PollInterval != 5*time.Second {
		t.Errorf("dispatch defaults = %+v", cfg.Dispatch)
	}
}

func TestLoadFileAppliesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
[http]
port = 9999

[mongodb]
database = "fromfile"

[dispatch]
concurrency = 12
poll_interval = "2s"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.HTTP.Port != 9999 {
		t.Errorf("port = %d, want 9999 from file", cfg.HTTP.Port)
	}
	if cfg.MongoDB.Database != "fromfile" {
		t.Errorf("database = %q, want fromfile", cfg.MongoDB.Database)
	}
	if cfg.Dispatch.Concurrency != 12 || cfg.Dispatch.PollInterval != 2*time.Second {
		t.Errorf("dispatch = %+v, want file values", cfg.Dispatch)
	}
	// Fields the file leaves out keep their defaults
	if cfg.Dispatch.RetryInterval != 30*time.Second {
		t.Errorf("retryInterval = %v, want default 30s", cfg.Dispatch.RetryInterval)
	}
}

func TestEnvWinsOverFile(t *testing.T) {
	path := writeConfigFile(t, `
[http]
port = 9999

[mongodb]
database = "fromfile"
`)
	t.Setenv("HTTP_PORT", "7777")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.HTTP.Port != 7777 {
		t.Errorf("port = %d, want env value 7777 over file", cfg.HTTP.Port)
	}
	// Unset env vars leave file values in place
	if cfg.MongoDB.Database != "fromfile" {
		t.Errorf("database = %q, want fromfile", cfg.MongoDB.Database)
	}
}

func TestLoadFileMissingPathFallsBackToEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "7070")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.HTTP.Port != 7070 {
		t.Errorf("port = %d, want env value 7070", cfg.HTTP.Port)
	}
}
