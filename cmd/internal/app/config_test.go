package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	"livecheck/cmd/internal/verify"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults: addr=%q format=%q", cfg.HTTPAddr, cfg.LogFormat)
	}
	if cfg.Storage.Backend != "file" || cfg.Storage.Dir != "uploads" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Storage.Redis.KeyTTL != 2*cfg.Verify.ArtifactTTL {
		t.Fatalf("redis key ttl=%v want 2x artifact ttl", cfg.Storage.Redis.KeyTTL)
	}
	if cfg.Verify != verify.DefaultConfig() {
		t.Fatalf("unexpected verify config: %+v", cfg.Verify)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("LIVECHECK_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("LIVECHECK_LOG_FORMAT", "text")
	t.Setenv("LIVECHECK_MAX_UPLOAD_BYTES", "2048")
	t.Setenv("LIVECHECK_CORS_ALLOWED_ORIGINS", "https://a.example.com, ,http://127.0.0.1:*")
	t.Setenv("LIVECHECK_STORAGE_BACKEND", "redis")
	t.Setenv("LIVECHECK_ARTIFACT_TTL", "5m")
	t.Setenv("LIVECHECK_HTTP_READ_TIMEOUT", "garbage")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.LogFormat != "text" || cfg.MaxUploadBytes != 2048 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "http://127.0.0.1:*" {
		t.Fatalf("cors origins=%v", cfg.CORSAllowedOrigins)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.Redis.KeyTTL != 10*time.Minute {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Fatalf("bad duration must fall back to default, got %v", cfg.ReadTimeout)
	}
}

func TestLoadConfig_InvalidLifecycle(t *testing.T) {
	t.Setenv("LIVECHECK_ARTIFACT_TTL", "10s")
	t.Setenv("LIVECHECK_SWEEP_INTERVAL", "30s")

	if _, err := LoadConfig(); !errors.Is(err, verify.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg := Config{
		DatabaseURL:        "postgres://app:s3cret@db:5432/livecheck?sslmode=disable",
		CORSAllowedOrigins: []string{"https://a.example.com"},
	}
	cfg.Storage.Redis.Password = "hunter2"

	out := cfg.Redacted()
	if strings.Contains(out.DatabaseURL, "s3cret") || !strings.Contains(out.DatabaseURL, "app:") {
		t.Fatalf("database url not redacted: %q", out.DatabaseURL)
	}
	if out.Storage.Redis.Password != "****" {
		t.Fatalf("redis password not redacted")
	}
	if cfg.DatabaseURL == out.DatabaseURL || cfg.Storage.Redis.Password != "hunter2" {
		t.Fatalf("Redacted must not modify the receiver")
	}

	out.CORSAllowedOrigins[0] = "changed"
	if cfg.CORSAllowedOrigins[0] != "https://a.example.com" {
		t.Fatalf("Redacted must copy slices")
	}
}
