package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("RequestTimeout = %s, want default 15s", cfg.RequestTimeout)
	}
	if cfg.MetricsAddr != ":9464" {
		t.Fatalf("MetricsAddr = %q, want default", cfg.MetricsAddr)
	}
	if cfg.StateDir == "" {
		t.Fatal("StateDir empty")
	}
}

func TestLoadFileAndEnvLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	file := `api_base_url: https://file.example.com
redis_url: redis://localhost:6379/0
request_timeout: 30s
`
	if err := os.WriteFile(path, []byte(file), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("KEYDESK_API", "https://env.example.com")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIBaseURL != "https://env.example.com" {
		t.Fatalf("APIBaseURL = %q, want env to override file", cfg.APIBaseURL)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("RedisURL = %q, want file value preserved", cfg.RedisURL)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("RequestTimeout = %s, want file value", cfg.RequestTimeout)
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() expected error for missing explicit file")
	}
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("request_timeout: -1s\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(context.Background(), path); err == nil {
		t.Fatal("Load() expected error for negative timeout")
	}
}
