// Package config loads contextforge's YAML configuration file and applies
// environment-variable overrides on top of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"contextforge/internal/logging"

	"gopkg.in/yaml.v3"
)

// Config holds all contextforge configuration.
type Config struct {
	ContextStore ContextStoreConfig `yaml:"context_store"`
	FileTree     FileTreeConfig     `yaml:"file_tree"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Memory       MemoryConfig       `yaml:"memory"`
	Bead         BeadConfig         `yaml:"bead"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ContextStore: DefaultContextStoreConfig(),
		FileTree:     DefaultFileTreeConfig(),
		Embedding:    DefaultEmbeddingConfig(),
		Memory:       DefaultMemoryConfig(),
		Bead:         DefaultBeadConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("Loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("Config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("Config loaded from %s", path)
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment-variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("CONTEXTFORGE_MEMORY_DB"); path != "" {
		c.Memory.DatabasePath = path
	}
	if provider := os.Getenv("CONTEXTFORGE_EMBEDDING_PROVIDER"); provider != "" {
		c.Embedding.Provider = provider
	}
	if endpoint := os.Getenv("CONTEXTFORGE_REMOTE_EMBEDDING_ENDPOINT"); endpoint != "" {
		c.Embedding.RemoteEndpoint = endpoint
	}
	if model := os.Getenv("CONTEXTFORGE_REMOTE_EMBEDDING_MODEL"); model != "" {
		c.Embedding.RemoteModel = model
	}
	if dir := os.Getenv("CONTEXTFORGE_BUNDLED_CACHE_DIR"); dir != "" {
		c.Embedding.BundledCacheDir = dir
	}
}
