package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPPort != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("Expected default max message size 4096, got %d", cfg.MaxMessageSize)
	}
	if cfg.SendQueueSize != 256 {
		t.Errorf("Expected default send queue size 256, got %d", cfg.SendQueueSize)
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Server.HTTPPort != 8080 {
		t.Errorf("Expected default http_port 8080, got %d", config.Server.HTTPPort)
	}

	// The default file should now exist on disk
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected config file to be created: %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	content := `
[server]
http_port = 9999

[limits]
max_message_size = 8192
write_timeout_seconds = 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	cfg := config.ToServerConfig()
	if cfg.HTTPPort != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.HTTPPort)
	}
	if cfg.MaxMessageSize != 8192 {
		t.Errorf("Expected max message size 8192, got %d", cfg.MaxMessageSize)
	}
	if cfg.WriteTimeoutSeconds != 5 {
		t.Errorf("Expected write timeout 5, got %d", cfg.WriteTimeoutSeconds)
	}
	// Omitted values fall through to defaults
	if cfg.SendQueueSize != 256 {
		t.Errorf("Expected default send queue size 256, got %d", cfg.SendQueueSize)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := os.WriteFile(path, []byte("this is [not toml"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for invalid TOML")
	}
}
