package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// OllamaModel represents a model returned by /api/tags.
type OllamaModel struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// IsEmbedding guesses whether the model produces embeddings.
func (m OllamaModel) IsEmbedding() bool {
	name := strings.ToLower(m.Name)
	return strings.Contains(name, "embed") || strings.Contains(name, "nomic")
}

// HumanSize returns a human-readable size string.
func (m OllamaModel) HumanSize() string {
	const gb = 1024 * 1024 * 1024
	const mb = 1024 * 1024
	if m.Size >= gb {
		return fmt.Sprintf("%.1f GB", float64(m.Size)/float64(gb))
	}
	return fmt.Sprintf("%.0f MB", float64(m.Size)/float64(mb))
}

type tagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// ListOllamaModels queries the Ollama /api/tags endpoint and returns the
// installed models sorted by name.
func ListOllamaModels(ctx context.Context, baseURL string) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect to ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama /api/tags returned %d", resp.StatusCode)
	}

	var result tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	sort.Slice(result.Models, func(i, j int) bool { return result.Models[i].Name < result.Models[j].Name })
	return result.Models, nil
}
