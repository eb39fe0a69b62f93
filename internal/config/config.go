// Package config loads the repolens configuration file.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"repolens/internal/chunker"
	"repolens/internal/rag"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "repolens.yaml"

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// ShutdownTimeoutSecs bounds how long serve waits for running loads.
	ShutdownTimeoutSecs int `yaml:"shutdown_timeout_secs"`
}

// FetcherConfig configures repository checkouts.
type FetcherConfig struct {
	// WorkDir holds temporary clones. Empty uses the system temp dir.
	WorkDir      string `yaml:"work_dir"`
	MaxFileBytes int64  `yaml:"max_file_bytes"`
}

// IgnoreConfig adds ignore rules on top of the built-in ones.
type IgnoreConfig struct {
	Rules []string `yaml:"rules"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	Dimension int    `yaml:"dimension"`
	CacheSize int    `yaml:"cache_size"`
	BatchSize int    `yaml:"batch_size"`
}

// APIKey resolves the key from the configured environment variable.
func (c EmbedderConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// LLMConfig selects and configures the chat model.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey resolves the key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// VectorStoreConfig selects the vector store implementation.
type VectorStoreConfig struct {
	Type string `yaml:"type"`
	// Path defaults to <data_dir>/vectors.db.
	Path string `yaml:"path"`
}

// RegistryConfig controls persistence of repository records.
type RegistryConfig struct {
	Persist *bool `yaml:"persist,omitempty"`
	// Path defaults to <data_dir>/registry.db.
	Path string `yaml:"path"`
}

// Persistent reports whether records survive restarts.
func (c RegistryConfig) Persistent() bool {
	return c.Persist == nil || *c.Persist
}

// SummaryConfig configures repository summaries.
type SummaryConfig struct {
	SampleSize int `yaml:"sample_size"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	DataDir     string            `yaml:"data_dir"`
	Workers     int               `yaml:"workers"`
	Fetcher     FetcherConfig     `yaml:"fetcher"`
	Chunker     chunker.Options   `yaml:"chunker"`
	Ignore      IgnoreConfig      `yaml:"ignore"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Registry    RegistryConfig    `yaml:"registry"`
	Query       rag.Options       `yaml:"query"`
	Summary     SummaryConfig     `yaml:"summary"`
}

// VectorStorePath returns the SQLite database path.
func (c *AppConfig) VectorStorePath() string {
	if c.VectorStore.Path != "" {
		return c.VectorStore.Path
	}
	return filepath.Join(c.DataDir, "vectors.db")
}

// RegistryPath returns the bbolt database path.
func (c *AppConfig) RegistryPath() string {
	if c.Registry.Path != "" {
		return c.Registry.Path
	}
	return filepath.Join(c.DataDir, "registry.db")
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults. Environment overrides are applied in both cases.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./repolens.yaml first, then
// ~/.config/repolens/config.yaml. If neither exists, it writes defaults to
// the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	if _, err := os.Stat(FileName); err == nil {
		cfg, err := Load(FileName)
		return cfg, FileName, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnv(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "repolens", "config.yaml"), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".repolens"
	}
	return filepath.Join(home, ".local", "share", "repolens")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8000"
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 30
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.Chunker.MaxLines == 0 && cfg.Chunker.MaxBytes == 0 && cfg.Chunker.WindowLines == 0 {
		cfg.Chunker = chunker.DefaultOptions()
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = "ollama"
	}
	switch cfg.Embedder.Provider {
	case "ollama":
		if cfg.Embedder.BaseURL == "" {
			cfg.Embedder.BaseURL = "http://localhost:11434"
		}
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "nomic-embed-text"
		}
	case "openai":
		if cfg.Embedder.BaseURL == "" {
			cfg.Embedder.BaseURL = "https://api.openai.com"
		}
		if cfg.Embedder.APIKeyEnv == "" {
			cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "text-embedding-3-small"
		}
	case "local":
		if cfg.Embedder.Dimension == 0 {
			cfg.Embedder.Dimension = 384
		}
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 1024
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	switch cfg.LLM.Provider {
	case "ollama":
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "http://localhost:11434"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "llama3.2"
		}
	case "openai":
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://api.openai.com"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gpt-3.5-turbo"
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = rag.DefaultTopK
	}
	if cfg.Query.ContextBudget == 0 {
		cfg.Query.ContextBudget = rag.DefaultContextBudget
	}
	if cfg.Summary.SampleSize == 0 {
		cfg.Summary.SampleSize = rag.DefaultSampleSize
	}
}

// applyEnv overrides file values with REPOLENS_* variables.
func applyEnv(cfg *AppConfig) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("REPOLENS_SERVER_ADDR", &cfg.Server.Addr)
	str("REPOLENS_DATA_DIR", &cfg.DataDir)
	str("REPOLENS_EMBEDDER_PROVIDER", &cfg.Embedder.Provider)
	str("REPOLENS_EMBEDDER_BASE_URL", &cfg.Embedder.BaseURL)
	str("REPOLENS_EMBEDDER_MODEL", &cfg.Embedder.Model)
	str("REPOLENS_LLM_PROVIDER", &cfg.LLM.Provider)
	str("REPOLENS_LLM_BASE_URL", &cfg.LLM.BaseURL)
	str("REPOLENS_LLM_MODEL", &cfg.LLM.Model)
	str("REPOLENS_VECTOR_STORE", &cfg.VectorStore.Type)
	if v := os.Getenv("REPOLENS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
}
