package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaChatComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)
		require.NotNil(t, req.Options)
		assert.InDelta(t, 0.3, req.Options.Temperature, 1e-9)
		assert.Equal(t, 1000, req.Options.NumPredict)
		require.Len(t, req.Messages, 2)
		_ = json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: "It parses configs."}})
	}))
	defer srv.Close()

	c := NewOllamaChat(srv.URL, "llama3.2")
	out, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "what does it do?"},
	}, Options{Temperature: 0.3, MaxTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, "It parses configs.", out)
}

func TestOllamaChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaChat(srv.URL, "m").Complete(context.Background(), nil, Options{})
	require.ErrorIs(t, err, ErrCompletion)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestOpenAIChatComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-x", r.Header.Get("Authorization"))
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultOpenAIModel, req.Model)
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 1500, req.MaxTokens)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  A summary.  "}}]}`))
	}))
	defer srv.Close()

	out, err := NewOpenAIChat(srv.URL, "sk-x", "").Complete(context.Background(),
		[]Message{{Role: "user", Content: "summarize"}}, Options{Temperature: 0.7, MaxTokens: 1500})
	require.NoError(t, err)
	assert.Equal(t, "A summary.", out)
}

func TestOpenAIChatNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIChat(srv.URL, "", "gpt-4").Complete(context.Background(), nil, Options{})
	require.ErrorIs(t, err, ErrCompletion)
}

func TestNew(t *testing.T) {
	c, err := New(Config{Provider: "openai", Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", c.(*OpenAIChat).Model())

	c, err = New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", c.(*OllamaChat).Model())

	_, err = New(Config{Provider: "nope"})
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestListOllamaModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text","size":274000000},{"name":"llama3.2","size":2019393189}]}`))
	}))
	defer srv.Close()

	models, err := ListOllamaModels(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "llama3.2", models[0].Name)
	assert.False(t, models[0].IsEmbedding())
	assert.Equal(t, "1.9 GB", models[0].HumanSize())
	assert.True(t, models[1].IsEmbedding())
	assert.Equal(t, "261 MB", models[1].HumanSize())
}
