package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Ollama calls the Ollama /api/embed endpoint.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	retry   RetryConfig
	dim     atomic.Int64
}

// NewOllama creates an embedder targeting the given Ollama instance.
func NewOllama(baseURL, model string) *Ollama {
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		retry: DefaultRetryConfig(),
	}
}

// Model returns the configured model name.
func (e *Ollama) Model() string { return e.model }

// Dimension returns the vector length seen in the last response.
func (e *Ollama) Dimension() int { return int(e.dim.Load()) }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed sends a batch of texts to Ollama and returns their embeddings.
func (e *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	vecs, err := retryWithBackoff(ctx, e.retry, func() ([][]float32, error) {
		return e.call(ctx, body)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", ErrEmbedding, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbedding, len(texts), len(vecs))
	}
	if len(vecs[0]) > 0 {
		e.dim.Store(int64(len(vecs[0])))
	}
	return vecs, nil
}

func (e *Ollama) call(ctx context.Context, body []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &statusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	return result.Embeddings, nil
}
