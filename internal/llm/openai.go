package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-3.5-turbo"

// OpenAIChat calls an OpenAI-compatible /v1/chat/completions endpoint.
type OpenAIChat struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIChat creates a chat client. baseURL defaults to
// https://api.openai.com.
func NewOpenAIChat(baseURL, apiKey, model string) *OpenAIChat {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIChat{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (c *OpenAIChat) Model() string { return c.model }

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIChat) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	req := openAIRequest{Model: c.model, Messages: messages, MaxTokens: opts.MaxTokens}
	if opts.Temperature > 0 {
		t := opts.Temperature
		req.Temperature = &t
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: openai chat request: %v", ErrCompletion, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: openai chat returned %d: %s", ErrCompletion, resp.StatusCode, string(respBody))
	}

	var result openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode chat response: %v", ErrCompletion, err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrCompletion)
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
