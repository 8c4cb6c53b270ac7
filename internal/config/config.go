// Package config loads layered tool configuration: hardcoded defaults,
// then the user file, then the project file, then environment variables,
// each layer overriding the one before it. It also owns the tool home
// directory layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfigFile is the per-repo configuration file name.
const ProjectConfigFile = ".codeintel.yaml"

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is ollama, static, or empty for auto-detect.
	Provider string `yaml:"provider"`

	// Model names the embedding model for providers that take one.
	Model string `yaml:"model"`

	// OllamaHost overrides the local endpoint.
	OllamaHost string `yaml:"ollama_host"`
}

// SearchConfig tunes query serving.
type SearchConfig struct {
	// MaxResults caps one query's result count.
	MaxResults int `yaml:"max_results"`

	// Diversity is the default MMR lambda in [0,1].
	Diversity float64 `yaml:"diversity"`
}

// PathsConfig shapes the walk.
type PathsConfig struct {
	Exclude []string `yaml:"exclude"`
	Secrets []string `yaml:"secrets"`

	// IncludeHidden walks dotfiles.
	IncludeHidden bool `yaml:"include_hidden"`

	// MaxFileSizeMB drops files above this size.
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
}

// Config is the merged view the rest of the tool reads.
type Config struct {
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Paths      PathsConfig      `yaml:"paths"`
}

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		Search: SearchConfig{
			MaxResults: 10,
			Diversity:  0.7,
		},
		Paths: PathsConfig{
			MaxFileSizeMB: 10,
		},
	}
}

// userConfigPath is ~/.config/codeintel/config.yaml.
func userConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "codeintel", "config.yaml")
}

// Load merges defaults, the user file, root's project file, and the
// environment. Missing files are fine; a malformed file is an error.
func Load(root string) (*Config, error) {
	cfg := NewConfig()

	if path := userConfigPath(); path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := mergeFile(cfg, filepath.Join(root, ProjectConfigFile)); err != nil {
		return nil, err
	}
	mergeEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays one YAML file onto cfg. Absent file, no-op.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// mergeEnv applies the highest-priority layer.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("CODEINTEL_EMBEDDINGS_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("CODEINTEL_EMBEDDINGS_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("CODEINTEL_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.OllamaHost = v
	}
}

// Validate rejects values the engine would misbehave on.
func (c *Config) Validate() error {
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must not be negative")
	}
	if c.Search.Diversity < 0 || c.Search.Diversity > 1 {
		return fmt.Errorf("search.diversity must be in [0,1], got %v", c.Search.Diversity)
	}
	if c.Paths.MaxFileSizeMB < 0 {
		return fmt.Errorf("paths.max_file_size_mb must not be negative")
	}
	return nil
}
