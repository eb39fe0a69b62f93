package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"repolens/internal/chunker"
	"repolens/internal/chunker/languages"
	"repolens/internal/embedder"
	"repolens/internal/fetcher"
	"repolens/internal/index"
	"repolens/internal/llm"
	"repolens/internal/rag"
	"repolens/internal/registry"
	"repolens/internal/store"
	"repolens/internal/vectorindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
}

func (f *fakeCompleter) Complete(context.Context, []llm.Message, llm.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reply, f.err
}

// gatedFetcher blocks until gate is closed, then reads a local directory.
type gatedFetcher struct {
	inner fetcher.Fetcher
	gate  chan struct{}
}

func (g *gatedFetcher) Fetch(ctx context.Context, rawURL string) (*fetcher.Snapshot, error) {
	<-g.gate
	return g.inner.Fetch(ctx, rawURL)
}

type testEnv struct {
	client    *Client
	indexer   *index.Indexer
	completer *fakeCompleter
	repo      string
}

func newTestEnv(t *testing.T, gate chan struct{}) *testEnv {
	t.Helper()
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "main.go"), []byte("package main\n\nfunc main() {\n\tserve()\n}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("# Demo\n\nA demo service.\n"), 0o644))

	reg, err := registry.New(nil, nil)
	require.NoError(t, err)
	ch := chunker.New(languages.NewRegistry(), chunker.DefaultOptions())
	var f fetcher.Fetcher = fetcher.NewLocal(fetcher.Options{Detector: ch.Registry()})
	if gate != nil {
		f = &gatedFetcher{inner: f, gate: gate}
	}
	adapter := vectorindex.New(store.NewMemory(), embedder.NewLocal(64), 0, nil)
	ix := index.New(index.Deps{Registry: reg, Fetcher: f, Chunker: ch, Index: adapter, Workers: 2})
	c := &fakeCompleter{reply: "It is a demo."}

	srv := NewServer(ix, rag.NewEngine(reg, adapter, c, rag.Options{}, nil), rag.NewSummarizer(reg, adapter, c, 0, nil), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ix.Wait()
		ts.Close()
	})
	return &testEnv{client: NewClient(ts.URL), indexer: ix, completer: c, repo: repo}
}

func apiStatus(t *testing.T, err error) int {
	t.Helper()
	var ae *APIError
	require.True(t, errors.As(err, &ae), "expected APIError, got %v", err)
	return ae.StatusCode
}

func TestRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	require.NoError(t, env.client.Health(ctx))

	st, err := env.client.Status(ctx, env.repo)
	require.NoError(t, err)
	assert.False(t, st.Loaded)
	assert.Equal(t, registry.StatusNotLoaded, st.Status)

	_, err = env.client.Query(ctx, env.repo, "what is this?")
	assert.Equal(t, http.StatusConflict, apiStatus(t, err))

	resp, started, err := env.client.Load(ctx, env.repo, false)
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, resp.Success)
	env.indexer.Wait()

	st, err = env.client.Status(ctx, env.repo)
	require.NoError(t, err)
	assert.True(t, st.Loaded)
	assert.Equal(t, registry.StageReady, st.Stage)
	assert.Equal(t, 2, st.Progress.TotalFiles)
	assert.Equal(t, 2, st.Progress.ProcessedFiles)
	assert.Positive(t, st.Progress.ChunksCreated)

	_, started, err = env.client.Load(ctx, env.repo, false)
	require.NoError(t, err)
	assert.False(t, started)

	list, err := env.client.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, st.RepoID, list[0].RepoID)

	ans, err := env.client.Query(ctx, env.repo, "what does main do?")
	require.NoError(t, err)
	assert.Equal(t, "It is a demo.", ans.Answer)
	assert.NotEmpty(t, ans.Sources)

	summary, err := env.client.Summary(ctx, env.repo)
	require.NoError(t, err)
	assert.Equal(t, "It is a demo.", summary)

	require.NoError(t, env.client.Unload(ctx, env.repo))
	err = env.client.Unload(ctx, env.repo)
	assert.Equal(t, http.StatusNotFound, apiStatus(t, err))
}

func TestLoadConflictWhileProcessing(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	env := newTestEnv(t, gate)

	_, started, err := env.client.Load(ctx, env.repo, false)
	require.NoError(t, err)
	require.True(t, started)

	ok, err := env.client.CanRestart(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = env.client.Load(ctx, "https://github.com/acme/other", false)
	assert.Equal(t, http.StatusConflict, apiStatus(t, err))

	err = env.client.Unload(ctx, env.repo)
	assert.Equal(t, http.StatusConflict, apiStatus(t, err))

	close(gate)
	env.indexer.Wait()
	ok, err = env.client.CanRestart(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestErrorStatusCodes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	_, _, err := env.client.Load(ctx, "", false)
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))

	_, err = env.client.Status(ctx, "not a url")
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))

	_, _, err = env.client.Load(ctx, env.repo, false)
	require.NoError(t, err)
	env.indexer.Wait()

	_, err = env.client.Query(ctx, env.repo, "   ")
	assert.Equal(t, http.StatusBadRequest, apiStatus(t, err))

	env.completer.mu.Lock()
	env.completer.err = errors.New("model offline")
	env.completer.mu.Unlock()
	_, err = env.client.Query(ctx, env.repo, "what is this?")
	assert.Equal(t, http.StatusBadGateway, apiStatus(t, err))
	_, err = env.client.Summary(ctx, env.repo)
	assert.Equal(t, http.StatusBadGateway, apiStatus(t, err))
}

func TestUnloadByPath(t *testing.T) {
	env := newTestEnv(t, nil)
	req, err := http.NewRequest(http.MethodDelete, env.client.baseURL+"/api/repository/github.com/acme/unknown", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidBody(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, err := http.Post(env.client.baseURL+"/api/query", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	h := NewServer(nil, nil, nil, nil).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/api/query", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeShutsDown(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(env.indexer, nil, nil, nil)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, "127.0.0.1:0", time.Second) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
