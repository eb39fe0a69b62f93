package embedder

import (
	"fmt"
	"strings"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider  string
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
	CacheSize int
}

// New creates an embedder from configuration. A positive CacheSize wraps
// it in an LRU cache.
func New(cfg Config) (Embedder, error) {
	var e Embedder
	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama, "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		e = NewOllama(baseURL, model)
	case ProviderOpenAI:
		e = NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderLocal:
		e = NewLocal(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		e = NewCached(e, cfg.CacheSize)
	}
	return e, nil
}
