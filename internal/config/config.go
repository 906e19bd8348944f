package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Models   ModelsConfig   `yaml:"models"`
	Decoding DecodingConfig `yaml:"decoding"`
	Engine   EngineConfig   `yaml:"engine"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ModelsConfig contains model storage and download configuration
type ModelsConfig struct {
	Dir             string `yaml:"dir"`
	Variant         string `yaml:"variant"`
	BaseURL         string `yaml:"base_url"`
	DownloadTimeout int    `yaml:"download_timeout"` // seconds
}

// DecodingConfig contains token decoding parameters
type DecodingConfig struct {
	MaxTokens int    `yaml:"max_tokens"`
	Timeout   int    `yaml:"timeout"`  // seconds, 0 disables
	Language  string `yaml:"language"` // ISO 639-1 code, empty enables detection
}

// EngineConfig contains transcription engine configuration
type EngineConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with sensible defaults for local use
func Default() *Config {
	return &Config{
		Models: ModelsConfig{
			Dir:             "./data",
			Variant:         "base",
			BaseURL:         "https://models.example.com/whisper",
			DownloadTimeout: 600,
		},
		Decoding: DecodingConfig{
			MaxTokens: 448,
			Timeout:   120,
		},
		Engine: EngineConfig{
			QueueSize: 8,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Models.Validate(); err != nil {
		return fmt.Errorf("models config: %w", err)
	}

	if err := c.Decoding.Validate(); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates model configuration
func (m *ModelsConfig) Validate() error {
	if m.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}

	validVariants := map[string]bool{"tiny": true, "base": true, "small": true}
	if !validVariants[m.Variant] {
		return fmt.Errorf("variant must be one of [tiny, base, small], got '%s'", m.Variant)
	}

	if m.DownloadTimeout < 1 {
		return fmt.Errorf("download_timeout must be at least 1 second, got %d", m.DownloadTimeout)
	}

	return nil
}

// Validate validates decoding configuration
func (d *DecodingConfig) Validate() error {
	if d.MaxTokens < 1 || d.MaxTokens > 448 {
		return fmt.Errorf("max_tokens must be between 1 and 448, got %d", d.MaxTokens)
	}

	if d.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", d.Timeout)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	if e.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", e.QueueSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetDownloadTimeout returns the model download timeout as a time.Duration
func (m *ModelsConfig) GetDownloadTimeout() time.Duration {
	return time.Duration(m.DownloadTimeout) * time.Second
}

// GetDecodeTimeout returns the per-request decode timeout as a time.Duration
func (d *DecodingConfig) GetDecodeTimeout() time.Duration {
	return time.Duration(d.Timeout) * time.Second
}
