package main

import (
	"log/slog"
	"testing"
)

func TestEnvIntDefault(t *testing.T) {
	t.Setenv("NEXUS_TEST_INT", "25")
	if got := envIntDefault("NEXUS_TEST_INT", 10); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
	t.Setenv("NEXUS_TEST_INT", "-3")
	if got := envIntDefault("NEXUS_TEST_INT", 10); got != 10 {
		t.Fatalf("expected default for negative value, got %d", got)
	}
	t.Setenv("NEXUS_TEST_INT", "abc")
	if got := envIntDefault("NEXUS_TEST_INT", 10); got != 10 {
		t.Fatalf("expected default for junk value, got %d", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SERVICE_PORT", "")
	t.Setenv("NEXUS_STORE", "Memory")
	t.Setenv("NEXUS_LOG_LEVEL", "WARN")
	cfg := loadConfig()
	if cfg.Port != "8090" {
		t.Fatalf("unexpected default port %q", cfg.Port)
	}
	if !cfg.MemoryStore {
		t.Fatal("expected memory store to be selected")
	}
	if cfg.LogLevel != slog.LevelWarn {
		t.Fatalf("unexpected log level %v", cfg.LogLevel)
	}
}
