package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"repolens/internal/config"
	"repolens/internal/embedder"
	"repolens/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, dir string) *config.AppConfig {
	t.Helper()
	path := filepath.Join(dir, "repolens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: "+filepath.Join(dir, "data")+"\nembedder:\n  provider: local\n  dimension: 64\n"), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNewLoadsLocalRepository(t *testing.T) {
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo")
	require.NoError(t, os.MkdirAll(repo, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))

	cfg := testConfig(t, dir)
	a, err := New(context.Background(), cfg, nil, Overrides{})
	require.NoError(t, err)

	_, err = a.Indexer.Load(context.Background(), repo, false)
	require.NoError(t, err)
	a.Indexer.Wait()

	rec, err := a.Indexer.Status(repo)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusReady, rec.Status, rec.ErrorMessage)
	assert.Equal(t, 1, rec.Progress.ProcessedFiles)
	require.NoError(t, a.Close())

	assert.FileExists(t, cfg.VectorStorePath())
	assert.FileExists(t, cfg.RegistryPath())

	// Records and vectors survive a restart.
	a, err = New(context.Background(), cfg, nil, Overrides{Embedder: embedder.NewLocal(64)})
	require.NoError(t, err)
	defer a.Close()
	rec, err = a.Indexer.Status(repo)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusReady, rec.Status)
	n, err := a.Index.Count(context.Background(), rec.ID, rec.Generation)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.VectorStore.Type = "qdrant"
	_, err := New(context.Background(), cfg, nil, Overrides{})
	assert.ErrorContains(t, err, "unknown vector store")
}

func TestRestartWithMemoryStoreForgetsReadyRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo")
	require.NoError(t, os.MkdirAll(repo, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))

	cfg := testConfig(t, dir)
	cfg.VectorStore.Type = "memory"
	require.True(t, cfg.Registry.Persistent())

	a, err := New(ctx, cfg, nil, Overrides{})
	require.NoError(t, err)
	_, err = a.Indexer.Load(ctx, repo, false)
	require.NoError(t, err)
	a.Indexer.Wait()
	rec, err := a.Indexer.Status(repo)
	require.NoError(t, err)
	require.Equal(t, registry.StatusReady, rec.Status, rec.ErrorMessage)
	require.NoError(t, a.Close())

	a, err = New(ctx, cfg, nil, Overrides{})
	require.NoError(t, err)
	defer a.Close()

	rec, err = a.Indexer.Status(repo)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusNotLoaded, rec.Status)

	_, err = a.Summarizer.Summarize(ctx, repo)
	assert.ErrorContains(t, err, "is not loaded")

	res, err := a.Indexer.Load(ctx, repo, false)
	require.NoError(t, err)
	assert.True(t, res.Started)
	a.Indexer.Wait()
	rec, err = a.Indexer.Status(repo)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusReady, rec.Status)
	n, err := a.Index.Count(ctx, rec.ID, rec.Generation)
	require.NoError(t, err)
	assert.Equal(t, rec.Progress.ChunksCreated, n)
}
