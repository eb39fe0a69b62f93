package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client calls a repolens server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) Health(ctx context.Context) error {
	var out HealthResponse
	return c.do(ctx, http.MethodGet, "/health", nil, &out)
}

// Load starts loading a repository. Started is false when it was already
// loaded.
func (c *Client) Load(ctx context.Context, repoURL string, force bool) (resp MessageResponse, started bool, err error) {
	status, err := c.doStatus(ctx, http.MethodPost, "/api/repository", LoadRequest{RepoURL: repoURL, ForceReload: force}, &resp)
	return resp, status == http.StatusAccepted, err
}

func (c *Client) Status(ctx context.Context, repoURL string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/repository/status?repo_url="+url.QueryEscape(repoURL), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns every repository known to the server.
func (c *Client) List(ctx context.Context) ([]StatusResponse, error) {
	var out []StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/repositories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Query(ctx context.Context, repoURL, question string) (*QueryResponse, error) {
	var out QueryResponse
	if err := c.do(ctx, http.MethodPost, "/api/query", QueryRequest{RepoURL: repoURL, Query: question}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Summary(ctx context.Context, repoURL string) (string, error) {
	var out SummaryResponse
	if err := c.do(ctx, http.MethodGet, "/api/repository/summary?repo_url="+url.QueryEscape(repoURL), nil, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

func (c *Client) Unload(ctx context.Context, repoURL string) error {
	var out MessageResponse
	return c.do(ctx, http.MethodDelete, "/api/repository?repo_url="+url.QueryEscape(repoURL), nil, &out)
}

func (c *Client) CanRestart(ctx context.Context) (bool, error) {
	var out CanRestartResponse
	if err := c.do(ctx, http.MethodGet, "/api/can_restart", nil, &out); err != nil {
		return false, err
	}
	return out.CanRestart, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.doStatus(ctx, method, path, body, out)
	return err
}

func (c *Client) doStatus(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var msg MessageResponse
		if json.Unmarshal(data, &msg) == nil && msg.Message != "" {
			return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: msg.Message}
		}
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
