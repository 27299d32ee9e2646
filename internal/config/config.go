// Package config reads the process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/agentdeck/backend"
	"github.com/hupe1980/agentdeck/logging"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	DBPath         string
	DataDir        string
	AllowedOrigins []string
	Log            LogConfig
	Backend        BackendConfig
	// RelaySecret enables the relay endpoints when set.
	RelaySecret  string
	ScheduleTick time.Duration
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// BackendConfig configures the reasoning backend and the acknowledgment profile.
type BackendConfig struct {
	AnthropicAPIKey string
	ClaudeBin       string
	CredentialsPath string
	Timeout         time.Duration
	AckProvider     backend.AckProvider
	OpenAIAPIKey    string
	OpenAIModel     string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "3000"),
		DBPath:         getEnv("DB_PATH", filepath.Join("data", "agentdeck.db")),
		DataDir:        getEnv("DATA_DIR", filepath.Join("data", "agents")),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "tint"),
		},
		Backend: BackendConfig{
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			ClaudeBin:       getEnv("CLAUDE_BIN", "claude"),
			CredentialsPath: getEnv("CLAUDE_CREDENTIALS", ""),
			Timeout:         getEnvDuration("BACKEND_TIMEOUT", 5*time.Minute),
			AckProvider:     backend.ParseAckProvider(getEnv("ACK_PROVIDER", "auto")),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		RelaySecret:  getEnv("RELAY_SECRET", ""),
		ScheduleTick: getEnvDuration("SCHEDULE_TICK", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set and in range.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("PORT must be a valid port number, got %q", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR cannot be empty")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be > 0")
	}
	if c.ScheduleTick < time.Second {
		return fmt.Errorf("SCHEDULE_TICK must be at least 1s")
	}
	switch c.Log.Format {
	case "json", "text", "tint":
	default:
		return fmt.Errorf("LOG_FORMAT must be json, text or tint, got %q", c.Log.Format)
	}
	if c.Backend.AckProvider == backend.AckOpenAI && c.Backend.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for ACK_PROVIDER=openai")
	}
	return nil
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:  logging.ParseLevel(c.Log.Level),
		Format: c.Log.Format,
		Output: os.Stdout,
	}
}

// RelayEnabled reports whether the relay endpoints are served.
func (c *Config) RelayEnabled() bool {
	return c.RelaySecret != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
