// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	AgentServerURL string
	TextModel      string
	VisionModel    string
	ModelTimeout   time.Duration
	AuditLog       AuditLogConfig
}

// AuditLogConfig controls NDJSON conversation audit logging.
type AuditLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("AUDIT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/symbiote.db"),
		AgentServerURL: getEnv("AGENT_SERVER_URL", "http://localhost:11434"),
		TextModel:      getEnv("TEXT_MODEL", "deepseek-r1"),
		VisionModel:    getEnv("VISION_MODEL", "llava"),
		ModelTimeout:   getEnvDuration("MODEL_TIMEOUT", 120*time.Second),
		AuditLog: AuditLogConfig{
			Enabled:       getEnvBool("AUDIT_LOG_ENABLED", true),
			Dir:           getEnv("AUDIT_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("AUDIT_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("AUDIT_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.AgentServerURL == "" {
		return fmt.Errorf("AGENT_SERVER_URL cannot be empty")
	}
	if c.ModelTimeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be > 0")
	}
	if c.AuditLog.Enabled {
		if c.AuditLog.Dir == "" {
			return fmt.Errorf("AUDIT_LOG_DIR cannot be empty")
		}
		if c.AuditLog.GlobalEnabled && c.AuditLog.GlobalPath == "" {
			return fmt.Errorf("AUDIT_LOG_GLOBAL_PATH cannot be empty")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
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
