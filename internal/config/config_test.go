package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "FRONTEND_URL", "DB_PATH", "AGENT_SERVER_URL",
		"TEXT_MODEL", "VISION_MODEL", "MODEL_TIMEOUT",
		"AUDIT_LOG_ENABLED", "AUDIT_LOG_DIR", "AUDIT_LOG_GLOBAL_ENABLED",
		"AUDIT_LOG_GLOBAL_PATH", "AUDIT_LOG_QUEUE_SIZE",
	} {
		// t.Setenv registers the restore; the variable must then be
		// absent, not empty, for the fallbacks to apply.
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DBPath != "./data/symbiote.db" {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
	if cfg.AgentServerURL != "http://localhost:11434" {
		t.Errorf("AgentServerURL = %q, want default", cfg.AgentServerURL)
	}
	if cfg.TextModel != "deepseek-r1" || cfg.VisionModel != "llava" {
		t.Errorf("models = (%q, %q), want defaults", cfg.TextModel, cfg.VisionModel)
	}
	if cfg.ModelTimeout != 120*time.Second {
		t.Errorf("ModelTimeout = %v, want 120s", cfg.ModelTimeout)
	}
	if !cfg.AuditLog.Enabled {
		t.Error("AuditLog.Enabled = false, want true by default")
	}
	if cfg.AuditLog.QueueSize != 1000 {
		t.Errorf("AuditLog.QueueSize = %d, want 1000", cfg.AuditLog.QueueSize)
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false with no frontend URL, want true")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("FRONTEND_URL", "https://app.example.com")
	t.Setenv("MODEL_TIMEOUT", "30s")
	t.Setenv("AUDIT_LOG_ENABLED", "off")
	t.Setenv("AUDIT_LOG_QUEUE_SIZE", "250")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.ModelTimeout != 30*time.Second {
		t.Errorf("ModelTimeout = %v, want 30s", cfg.ModelTimeout)
	}
	if cfg.AuditLog.Enabled {
		t.Error("AuditLog.Enabled = true, want false")
	}
	if cfg.AuditLog.QueueSize != 250 {
		t.Errorf("AuditLog.QueueSize = %d, want 250", cfg.AuditLog.QueueSize)
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true for a production frontend URL")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MODEL_TIMEOUT", "soon")
	t.Setenv("AUDIT_LOG_QUEUE_SIZE", "lots")
	t.Setenv("AUDIT_LOG_ENABLED", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ModelTimeout != 120*time.Second {
		t.Errorf("ModelTimeout = %v, want fallback 120s", cfg.ModelTimeout)
	}
	if cfg.AuditLog.QueueSize != 1000 {
		t.Errorf("AuditLog.QueueSize = %d, want fallback 1000", cfg.AuditLog.QueueSize)
	}
	if !cfg.AuditLog.Enabled {
		t.Error("AuditLog.Enabled = false, want fallback true")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		Port:           "8080",
		DBPath:         "./data/test.db",
		AgentServerURL: "http://localhost:11434",
		ModelTimeout:   time.Minute,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"missing db path", func(c *Config) { c.DBPath = "" }, true},
		{"missing endpoint", func(c *Config) { c.AgentServerURL = "" }, true},
		{"zero timeout", func(c *Config) { c.ModelTimeout = 0 }, true},
		{"audit enabled without dir", func(c *Config) {
			c.AuditLog.Enabled = true
		}, true},
		{"global audit without path", func(c *Config) {
			c.AuditLog.Enabled = true
			c.AuditLog.Dir = "./logs"
			c.AuditLog.GlobalEnabled = true
		}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
