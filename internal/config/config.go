// Package config holds the engine configuration: backend endpoint, viewer
// identity, auto-reply settings, and collaborator paths.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the root configuration for campuschat.
type Config struct {
	General     GeneralConfig     `json:"general"`
	Backend     BackendConfig     `json:"backend"`
	Viewer      ViewerConfig      `json:"viewer"`
	AutoReply   AutoReplyConfig   `json:"autoReply"`
	Directory   DirectoryConfig   `json:"directory"`
	Attachments AttachmentsConfig `json:"attachments"`
	Metrics     MetricsConfig     `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"`
}

type BackendConfig struct {
	// Endpoint is the dashboard's single remote-procedure URL.
	Endpoint            string `json:"endpoint"`
	TimeoutSeconds      int    `json:"timeoutSeconds"`
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
	// PushURL additionally enables the websocket push channel when set;
	// polling keeps running as the fallback.
	PushURL string `json:"pushUrl,omitempty"`
}

type ViewerConfig struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"` // e.g. "teacher" | "admin" | "student"
}

type AutoReplyConfig struct {
	Enabled        bool   `json:"enabled"`
	Phrase         string `json:"phrase"`
	AssistantName  string `json:"assistantName"`
	GeneratorURL   string `json:"generatorUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type DirectoryConfig struct {
	Path string `json:"path"`
}

type AttachmentsConfig struct {
	DBPath string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// DefaultConfigDir returns ~/.campuschat.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".campuschat"
	}
	return filepath.Join(home, ".campuschat")
}

// DefaultConfigPath returns ~/.campuschat/config.json.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Validate rejects configurations the engine cannot run with.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Backend.Endpoint) == "" {
		return fmt.Errorf("backend.endpoint must be set")
	}
	if cfg.Backend.PollIntervalSeconds < 1 || cfg.Backend.PollIntervalSeconds > 300 {
		return fmt.Errorf("backend.pollIntervalSeconds must be between 1 and 300, got %d", cfg.Backend.PollIntervalSeconds)
	}
	if cfg.Backend.TimeoutSeconds < 1 {
		return fmt.Errorf("backend.timeoutSeconds must be positive, got %d", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Viewer.ID <= 0 {
		return fmt.Errorf("viewer.id must be a positive directory id, got %d", cfg.Viewer.ID)
	}
	if cfg.AutoReply.Enabled {
		if strings.TrimSpace(cfg.AutoReply.Phrase) == "" {
			return fmt.Errorf("autoReply.phrase must be set when auto-reply is enabled")
		}
		if strings.TrimSpace(cfg.AutoReply.GeneratorURL) == "" {
			return fmt.Errorf("autoReply.generatorUrl must be set when auto-reply is enabled")
		}
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be a valid port, got %d", cfg.Metrics.Port)
	}
	return nil
}
