// Package app wires configuration into the running components.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"repolens/internal/chunker"
	"repolens/internal/chunker/languages"
	"repolens/internal/config"
	"repolens/internal/embedder"
	"repolens/internal/fetcher"
	"repolens/internal/index"
	"repolens/internal/llm"
	"repolens/internal/rag"
	"repolens/internal/registry"
	"repolens/internal/store"
	"repolens/internal/vectorindex"
)

// App holds every long-lived component of a process.
type App struct {
	Config     *config.AppConfig
	Log        *slog.Logger
	Registry   *registry.Registry
	Store      store.Store
	Chunker    *chunker.Chunker
	Index      *vectorindex.Adapter
	Indexer    *index.Indexer
	Engine     *rag.Engine
	Summarizer *rag.Summarizer
}

// Overrides replace components built from configuration. Nil fields use
// the configured implementation.
type Overrides struct {
	Fetcher   fetcher.Fetcher
	Embedder  embedder.Embedder
	Completer llm.Completer
}

// New builds an App from configuration.
func New(ctx context.Context, cfg *config.AppConfig, log *slog.Logger, ov Overrides) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.VectorStore.Type != "memory" || cfg.Registry.Persistent() {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	var persist registry.Persister
	if cfg.Registry.Persistent() {
		bolt, err := registry.OpenBolt(cfg.RegistryPath())
		if err != nil {
			return nil, fmt.Errorf("open registry: %w", err)
		}
		persist = bolt
	}
	reg, err := registry.New(persist, log.With("component", "registry"))
	if err != nil {
		if persist != nil {
			persist.Close()
		}
		return nil, fmt.Errorf("load registry: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		reg.Close()
		return nil, err
	}

	emb := ov.Embedder
	if emb == nil {
		emb, err = embedder.New(embedder.Config{
			Provider:  cfg.Embedder.Provider,
			BaseURL:   cfg.Embedder.BaseURL,
			Model:     cfg.Embedder.Model,
			APIKey:    cfg.Embedder.APIKey(),
			Dimension: cfg.Embedder.Dimension,
			CacheSize: cfg.Embedder.CacheSize,
		})
		if err != nil {
			return nil, errors.Join(err, st.Close(), reg.Close())
		}
	}

	completer := ov.Completer
	if completer == nil {
		completer, err = llm.New(llm.Config{
			Provider: cfg.LLM.Provider,
			BaseURL:  cfg.LLM.BaseURL,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey(),
		})
		if err != nil {
			return nil, errors.Join(err, st.Close(), reg.Close())
		}
	}

	ch := chunker.New(languages.NewRegistry(), cfg.Chunker)
	fetch := ov.Fetcher
	if fetch == nil {
		fetch = fetcher.NewAuto(fetcher.Options{
			WorkDir:      cfg.Fetcher.WorkDir,
			MaxFileBytes: cfg.Fetcher.MaxFileBytes,
			Detector:     ch.Registry(),
			Logger:       log.With("component", "fetcher"),
		})
	}

	adapter := vectorindex.New(st, emb, cfg.Embedder.BatchSize, log.With("component", "vectorindex"))
	ix := index.New(index.Deps{
		Registry:    reg,
		Fetcher:     fetch,
		Chunker:     ch,
		Index:       adapter,
		IgnoreRules: cfg.Ignore.Rules,
		Workers:     cfg.Workers,
		Logger:      log.With("component", "indexer"),
	})
	if err := ix.Reconcile(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("reconcile registry: %w", err), st.Close(), reg.Close())
	}
	return &App{
		Config:     cfg,
		Log:        log,
		Registry:   reg,
		Store:      st,
		Chunker:    ch,
		Index:      adapter,
		Indexer:    ix,
		Engine:     rag.NewEngine(reg, adapter, completer, cfg.Query, log.With("component", "rag")),
		Summarizer: rag.NewSummarizer(reg, adapter, completer, cfg.Summary.SampleSize, log.With("component", "summary")),
	}, nil
}

func openStore(ctx context.Context, cfg *config.AppConfig) (store.Store, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite", "":
		s, err := store.OpenSQLite(ctx, cfg.VectorStorePath())
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type)
	}
}

// Close waits for running loads and releases storage.
func (a *App) Close() error {
	a.Indexer.Wait()
	return errors.Join(a.Store.Close(), a.Registry.Close())
}
