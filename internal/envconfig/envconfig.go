// Package envconfig loads process configuration from the environment,
// optionally seeded from a .env file in the working directory.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full set of environment-derived settings for the process.
type Config struct {
	// OllamaHost is the base URL of the upstream Ollama host.
	OllamaHost string

	// LogLevel controls the slog handler's minimum level.
	LogLevel slog.Level

	// MetricsAddr is the listen address for the /metrics, /healthz, and
	// /readyz HTTP surface. Empty disables the HTTP server entirely.
	MetricsAddr string

	// DefaultTimeout overrides the per-request timeout budget when a research
	// call does not specify one. Zero means "use the built-in complexity
	// defaults".
	DefaultTimeout time.Duration
}

const (
	envOllamaHost  = "OLLAMA_HOST"
	envLogLevel    = "OLLAMA_RESEARCH_LOG_LEVEL"
	envMetricsAddr = "OLLAMA_RESEARCH_METRICS_ADDR"
	envTimeoutMs   = "OLLAMA_RESEARCH_TIMEOUT_MS"

	defaultOllamaHost  = "http://127.0.0.1:11434"
	defaultMetricsAddr = ":9090"
)

// Load reads configuration from the environment, first attempting to load a
// .env file from the current directory via [godotenv.Load]. A missing .env
// file is not an error; a malformed one is logged and otherwise ignored.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("envconfig: failed to load .env file", "error", err)
	}

	cfg := Config{
		OllamaHost:  getOrDefault(envOllamaHost, defaultOllamaHost),
		MetricsAddr: getOrDefault(envMetricsAddr, defaultMetricsAddr),
	}

	level, err := parseLevel(os.Getenv(envLogLevel))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	timeout, err := parseTimeoutMs(os.Getenv(envTimeoutMs))
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultTimeout = timeout

	return cfg, nil
}

func getOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(raw string) (slog.Level, error) {
	if raw == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("envconfig: invalid %s %q: %w", envLogLevel, raw, err)
	}
	return level, nil
}

func parseTimeoutMs(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("envconfig: invalid %s %q: %w", envTimeoutMs, raw, err)
	}
	if ms < 0 {
		return 0, fmt.Errorf("envconfig: %s must not be negative, got %d", envTimeoutMs, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
