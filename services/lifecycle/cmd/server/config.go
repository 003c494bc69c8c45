package main

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type config struct {
	DatabaseURL  string
	Port         string
	MaxConns     int
	MaxBodyBytes int
	LogLevel     slog.Level
	MemoryStore  bool
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Port:         strings.TrimSpace(os.Getenv("SERVICE_PORT")),
		MaxConns:     envIntDefault("NEXUS_DB_MAX_CONNS", 10),
		MaxBodyBytes: envIntDefault("NEXUS_MAX_BODY_BYTES", 1<<20),
		LogLevel:     parseLevel(os.Getenv("NEXUS_LOG_LEVEL")),
		MemoryStore:  strings.EqualFold(strings.TrimSpace(os.Getenv("NEXUS_STORE")), "memory"),
	}
	if cfg.Port == "" {
		cfg.Port = "8090"
	}
	return cfg
}

func envIntDefault(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
