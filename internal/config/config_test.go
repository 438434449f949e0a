package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvPort, "")
	t.Setenv(EnvWindowSeconds, "")
	t.Setenv(EnvCacheBackend, "")
	t.Setenv(EnvAIProvider, "")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.WindowSeconds() != 300 {
		t.Errorf("WindowSeconds = %d, want 300", cfg.WindowSeconds())
	}
	if cfg.CacheBackend() != "sqlite" {
		t.Errorf("CacheBackend = %q, want sqlite", cfg.CacheBackend())
	}
	if cfg.CacheTTL() != 0 {
		t.Errorf("CacheTTL = %v, want 0", cfg.CacheTTL())
	}
	if !cfg.CollapseDuplicates() {
		t.Error("CollapseDuplicates should default to true")
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Setenv(EnvPort, "8080")
	t.Setenv(EnvWindowSeconds, "60")
	t.Setenv(EnvCacheBackend, "REDIS")
	t.Setenv(EnvCacheTTL, "86400")
	t.Setenv(EnvGeminiAPIKeys, "k1, k2,,k3")
	t.Setenv(EnvDataDir, "/tmp/veritube-test")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port())
	}
	if cfg.WindowSeconds() != 60 {
		t.Errorf("WindowSeconds = %d, want 60", cfg.WindowSeconds())
	}
	if cfg.CacheBackend() != "redis" {
		t.Errorf("CacheBackend = %q, want redis", cfg.CacheBackend())
	}
	if cfg.CacheTTL() != 24*time.Hour {
		t.Errorf("CacheTTL = %v, want 24h", cfg.CacheTTL())
	}
	if got := cfg.GeminiAPIKeys(); len(got) != 3 || got[2] != "k3" {
		t.Errorf("GeminiAPIKeys = %v, want [k1 k2 k3]", got)
	}
	if cfg.DownloadDir() != filepath.Join("/tmp/veritube-test", "downloads") {
		t.Errorf("DownloadDir = %q", cfg.DownloadDir())
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port not a number", EnvPort, "abc"},
		{"port out of range", EnvPort, "70000"},
		{"zero window", EnvWindowSeconds, "0"},
		{"unknown backend", EnvCacheBackend, "mongo"},
		{"unknown provider", EnvAIProvider, "llama"},
		{"bad bool", EnvHeadless, "maybe"},
		{"bad duration", EnvCacheTTL, "forever"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigFile, "")
			t.Setenv(tt.key, tt.value)
			if _, err := New(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestNew_YAMLFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "veritube.yaml")
	content := `
server:
  port: 9090
  log_level: debug
cache:
  backend: postgres
  ttl: 1h
  postgres_dsn: postgres://localhost/veritube
pipeline:
  window_seconds: 120
ai:
  provider: openai
  openai_model: local-model
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvPort, "")
	t.Setenv(EnvWindowSeconds, "")
	t.Setenv(EnvCacheBackend, "")
	t.Setenv(EnvCacheTTL, "")
	t.Setenv(EnvAIProvider, "")
	t.Setenv(EnvOpenAIModel, "env-model")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel())
	}
	if cfg.CacheBackend() != "postgres" {
		t.Errorf("CacheBackend = %q, want postgres", cfg.CacheBackend())
	}
	if cfg.CacheTTL() != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", cfg.CacheTTL())
	}
	if cfg.WindowSeconds() != 120 {
		t.Errorf("WindowSeconds = %d, want 120", cfg.WindowSeconds())
	}
	if cfg.OpenAIModel() != "env-model" {
		t.Errorf("OpenAIModel = %q, want env-model (env wins)", cfg.OpenAIModel())
	}
}

func TestNew_MissingConfigFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := New(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
