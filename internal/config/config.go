package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"codeintel/internal/logging"
)

// Config holds all coordinator configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// CodeIntel holds gate levels, caching horizons, and impact-analysis
	// heuristics for the session coordinator.
	CodeIntel CodeIntelConfig `yaml:"code_intel"`

	// Embedding engine configuration.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Execution settings for subprocess-backed tools (rg, ctags, git).
	Execution ExecutionConfig `yaml:"execution"`

	// Logging.
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "codeintel",
		Version: "1.0.0",

		CodeIntel: DefaultCodeIntelConfig(),

		Embedding: EmbeddingConfig{
			Provider:        "ollama",
			OllamaEndpoint:  "http://localhost:11434",
			OllamaModel:     "embeddinggemma",
			GenAIModel:      "gemini-embedding-001",
			TaskType:        "SEMANTIC_SIMILARITY",
			RetryMaxElapsed: "15s",
		},

		Execution: ExecutionConfig{
			AllowedBinaries:  []string{"git", "rg", "ctags", "ls"},
			DefaultTimeout:   "30s",
			WorkingDirectory: ".",
			AllowedEnvVars:   []string{"PATH", "HOME"},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "codeintel.log",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults if
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
		logging.BootError("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("Failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("Config loaded: gate_level=%s embedding_provider=%s", cfg.CodeIntel.GateLevel, cfg.Embedding.Provider)

	return cfg, nil
}

// Save saves configuration to a YAML file.
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

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GENAI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "" || c.Embedding.Provider == "ollama" {
			c.Embedding.Provider = "genai"
		}
	}
	if endpoint := os.Getenv("OLLAMA_ENDPOINT"); endpoint != "" {
		c.Embedding.OllamaEndpoint = endpoint
	}
	if model := os.Getenv("OLLAMA_EMBEDDING_MODEL"); model != "" {
		c.Embedding.OllamaModel = model
	}
	if level := os.Getenv("CODEINTEL_GATE_LEVEL"); level != "" {
		c.CodeIntel.GateLevel = level
	}
	if store := os.Getenv("CODEINTEL_STORE_PATH"); store != "" {
		c.CodeIntel.StorePath = store
	}
}

// GetExecutionTimeout returns the default execution timeout as a duration.
func (c *Config) GetExecutionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.DefaultTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetBranchStaleAfter returns the branch staleness horizon as a duration.
func (c *Config) GetBranchStaleAfter() time.Duration {
	d, err := time.ParseDuration(c.CodeIntel.BranchStaleAfter)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// GetEmbeddingRetryMaxElapsed returns the embedding retry ceiling as a duration.
func (c *Config) GetEmbeddingRetryMaxElapsed() time.Duration {
	d, err := time.ParseDuration(c.Embedding.RetryMaxElapsed)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.CodeIntel.GateLevel {
	case "full", "auto":
	default:
		return fmt.Errorf("invalid gate_level: %s (valid: full, auto)", c.CodeIntel.GateLevel)
	}

	switch c.Embedding.Provider {
	case "ollama", "genai":
	default:
		return fmt.Errorf("invalid embedding provider: %s (valid: ollama, genai)", c.Embedding.Provider)
	}

	return nil
}
