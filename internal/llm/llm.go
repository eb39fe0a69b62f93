// Package llm talks to chat-completion models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCompletion matches every language model failure.
	ErrCompletion = errors.New("language model request failed")
	// ErrUnsupportedProvider is returned by New for unknown providers.
	ErrUnsupportedProvider = errors.New("unsupported llm provider")
)

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-request sampling settings. Zero values leave the
// provider default in place.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Completer returns the assistant reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config selects and configures a chat provider.
type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}

// New creates a Completer from configuration.
func New(cfg Config) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama, "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "llama3.2"
		}
		return NewOllamaChat(baseURL, model), nil
	case ProviderOpenAI:
		return NewOpenAIChat(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}
