package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func unsetAfter(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if _, ok := os.LookupEnv(k); ok {
			t.Fatalf("%s already set; test needs a clean environment", k)
		}
	}
	t.Cleanup(func() {
		for _, k := range keys {
			_ = os.Unsetenv(k)
		}
	})
}

func TestConfigCmd_LoadsEnvFile(t *testing.T) {
	unsetAfter(t, "LIVECHECK_HTTP_ADDR", "LIVECHECK_DATABASE_URL")

	path := filepath.Join(t.TempDir(), "test.env")
	content := "LIVECHECK_HTTP_ADDR=127.0.0.1:7777\nLIVECHECK_DATABASE_URL=postgres://u:secret@db/livecheck\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"config", "--env-file", path})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "127.0.0.1:7777") {
		t.Fatalf("env file not applied:\n%s", got)
	}
	if strings.Contains(got, "secret") {
		t.Fatalf("database password leaked:\n%s", got)
	}
	if !strings.Contains(got, "verify.artifact_ttl") {
		t.Fatalf("missing lifecycle settings:\n%s", got)
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.env")

	if err := loadEnvFile(missing, false); err != nil {
		t.Fatalf("missing default file must be ignored, got %v", err)
	}
	if err := loadEnvFile(missing, true); err == nil {
		t.Fatalf("missing explicit file must fail")
	}
	if err := loadEnvFile("  ", true); err != nil {
		t.Fatalf("empty path must be a no-op, got %v", err)
	}
}

func TestConfigCmd_RejectsArgs(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"config", "extra", "--env-file", ""})

	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for unexpected argument")
	}
}
