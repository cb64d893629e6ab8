// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const insecureDefaultKey = "0000000000000000000000000000000000000000000000000000000000000000"

// Config holds the configuration for the approval service.
type Config struct {
	StorePath       string        // path to the SQLite metadata file
	EncryptionKey   string        // 64-char hex string (32-byte AES key) for stored credentials
	ExecTimeout     time.Duration // deadline for direct query execution (default 30s)
	SandboxBin      string        // path to the sandbox child binary
	SandboxTimeout  time.Duration // wall-clock limit for sandboxed scripts (default 30s)
	SlackWebhookURL string        // Slack incoming webhook; empty disables notifications
	LogLevel        string        // log level: debug, info, warn, error (default "info")
	Env             string        // environment: "development" (default) or "production"

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the service is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		StorePath:       os.Getenv("STORE_PATH"),
		EncryptionKey:   os.Getenv("ENCRYPTION_KEY"),
		SandboxBin:      os.Getenv("SANDBOX_BIN"),
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		Env:             os.Getenv("ENV"),
	}

	var err error
	if cfg.ExecTimeout, err = parseDurationEnv("EXEC_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SandboxTimeout, err = parseDurationEnv("SANDBOX_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	// Defaults
	if cfg.StorePath == "" {
		cfg.StorePath = "opsgate_meta.sqlite"
	}
	if cfg.SandboxBin == "" {
		cfg.SandboxBin = "opsgate-sandbox"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.EncryptionKey == "" {
		cfg.EncryptionKey = insecureDefaultKey
		cfg.Warnings = append(cfg.Warnings, "ENCRYPTION_KEY not set, using insecure default. Set ENCRYPTION_KEY in production!")
	}
	if cfg.SlackWebhookURL == "" {
		cfg.Warnings = append(cfg.Warnings, "SLACK_WEBHOOK_URL not set, notifications are disabled")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() && cfg.EncryptionKey == insecureDefaultKey {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be set in production (ENV=production)")
	}

	return cfg, nil
}

func parseDurationEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
