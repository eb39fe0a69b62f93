package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAI calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	retry   RetryConfig
	dim     atomic.Int64
}

// NewOpenAI creates an embedder for an OpenAI-compatible API. baseURL
// defaults to https://api.openai.com.
func NewOpenAI(baseURL, apiKey, model string) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
		retry: DefaultRetryConfig(),
	}
}

func (o *OpenAI) Model() string  { return o.model }
func (o *OpenAI) Dimension() int { return int(o.dim.Load()) }

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(map[string]any{
		"input": texts,
		"model": o.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	vecs, err := retryWithBackoff(ctx, o.retry, func() ([][]float32, error) {
		return o.call(ctx, body)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", ErrEmbedding, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbedding, len(texts), len(vecs))
	}
	if len(vecs[0]) > 0 {
		o.dim.Store(int64(len(vecs[0])))
	}
	return vecs, nil
}

func (o *OpenAI) call(ctx context.Context, body []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &statusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var apiResp openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	sort.Slice(apiResp.Data, func(i, j int) bool { return apiResp.Data[i].Index < apiResp.Data[j].Index })

	vecs := make([][]float32, len(apiResp.Data))
	for i, d := range apiResp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
