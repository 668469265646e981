package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.UploadDir = t.TempDir()
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != "server" {
		t.Errorf("Expected default mode to be 'server', got '%s'", cfg.Mode)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host to be '127.0.0.1', got '%s'", cfg.Host)
	}
	if cfg.Port != 8000 {
		t.Errorf("Expected default port to be 8000, got %d", cfg.Port)
	}
	if cfg.ServerName != "pdf-assistant" {
		t.Errorf("Expected default server name to be 'pdf-assistant', got '%s'", cfg.ServerName)
	}
	if cfg.MaxFileSize != 50*1024*1024 {
		t.Errorf("Expected default max file size to be 50MB, got %d", cfg.MaxFileSize)
	}
	if cfg.SessionStore != StoreMemory {
		t.Errorf("Expected default session store to be memory, got '%s'", cfg.SessionStore)
	}
	if cfg.LLMProvider != ProviderRules {
		t.Errorf("Expected default llm provider to be rules, got '%s'", cfg.LLMProvider)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid server mode", mutate: func(c *Config) {}},
		{name: "valid stdio mode", mutate: func(c *Config) { c.Mode = ModeStdio }},
		{name: "invalid mode", mutate: func(c *Config) { c.Mode = "invalid" }, wantErr: true},
		{name: "port too low", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "port too high", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "port ignored in stdio mode", mutate: func(c *Config) { c.Mode = ModeStdio; c.Port = 0 }},
		{name: "empty upload directory", mutate: func(c *Config) { c.UploadDir = "" }, wantErr: true},
		{name: "zero max file size", mutate: func(c *Config) { c.MaxFileSize = 0 }, wantErr: true},
		{name: "invalid log level", mutate: func(c *Config) { c.LogLevel = "verbose" }, wantErr: true},
		{name: "unknown session store", mutate: func(c *Config) { c.SessionStore = "etcd" }, wantErr: true},
		{name: "redis without url", mutate: func(c *Config) { c.SessionStore = StoreRedis }, wantErr: true},
		{
			name: "redis with url",
			mutate: func(c *Config) {
				c.SessionStore = StoreRedis
				c.RedisURL = "redis://localhost:6379/0"
			},
		},
		{name: "unknown llm provider", mutate: func(c *Config) { c.LLMProvider = "gpt" }, wantErr: true},
		{name: "gemini without key", mutate: func(c *Config) { c.LLMProvider = ProviderGemini }, wantErr: true},
		{
			name: "gemini with key",
			mutate: func(c *Config) {
				c.LLMProvider = ProviderGemini
				c.GeminiAPIKey = "key"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateDirectoryCreation(t *testing.T) {
	cfg := validConfig(t)
	cfg.UploadDir = filepath.Join(cfg.UploadDir, "nested", "uploads")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if info, err := os.Stat(cfg.UploadDir); err != nil || !info.IsDir() {
		t.Errorf("upload directory was not created: %v", err)
	}
}

func TestConfigAddress(t *testing.T) {
	cfg := &Config{Host: "192.168.1.1", Port: 9090}

	if got := cfg.Address(); got != "192.168.1.1:9090" {
		t.Errorf("Config.Address() = %v, want %v", got, "192.168.1.1:9090")
	}
}

func TestConfigAllowedOrigins(t *testing.T) {
	cfg := &Config{CORSOrigins: " http://a.test, ,http://b.test "}

	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("AllowedOrigins() = %v", got)
	}
}

func TestConfigStringHidesKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GeminiAPIKey = "super-secret"

	s := cfg.String()
	if strings.Contains(s, "super-secret") {
		t.Errorf("String() leaked the api key: %s", s)
	}
	if !strings.Contains(s, "127.0.0.1:8000") {
		t.Errorf("String() = %s, want address included", s)
	}
}

func TestConfigModes(t *testing.T) {
	cfg := &Config{Mode: ModeServer}
	if !cfg.IsServerMode() || cfg.IsStdioMode() {
		t.Errorf("server mode misreported")
	}

	cfg.Mode = ModeStdio
	if cfg.IsServerMode() || !cfg.IsStdioMode() {
		t.Errorf("stdio mode misreported")
	}

	cfg.LogLevel = "debug"
	if !cfg.IsDebug() {
		t.Errorf("IsDebug() = false for debug level")
	}
}

func TestDefaultDurations(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.OperationTTL != time.Hour {
		t.Errorf("OperationTTL = %v", cfg.OperationTTL)
	}
}
