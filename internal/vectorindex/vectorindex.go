// Package vectorindex embeds chunks and keeps them in per-repository
// namespaces. Each load writes a new generation; the caller switches to it
// and then deletes the old one, so a repository never has a partial index.
package vectorindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"repolens/internal/chunker"
	"repolens/internal/embedder"
	"repolens/internal/store"
)

// DefaultBatchSize is the number of chunks embedded per request.
const DefaultBatchSize = 32

const modelMetaKey = "embedding_model"

var (
	// ErrIndex matches every embedding or vector store failure.
	ErrIndex = errors.New("index operation failed")
	// ErrModelChanged means stored vectors came from a different model.
	ErrModelChanged = errors.New("embedding model changed")
)

// IndexError wraps a failed index operation.
type IndexError struct {
	Op     string
	RepoID string
	Err    error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.RepoID, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

func (e *IndexError) Is(target error) bool { return target == ErrIndex }

// Chunk is an indexed chunk with its identity.
type Chunk struct {
	ID         string
	RepoID     string
	FilePath   string
	Language   string
	StartLine  int
	EndLine    int
	SymbolName string
	Kind       string
	Ordinal    int
	Content    string
}

// Result is a retrieved chunk with its similarity to the query.
type Result struct {
	Chunk
	Score float64
}

// ProgressFunc receives the number of chunks stored so far.
type ProgressFunc func(done, total int)

// Adapter maps repositories to store namespaces and embeds chunk text.
type Adapter struct {
	store     store.Store
	embedder  embedder.Embedder
	batchSize int
	log       *slog.Logger
}

// New creates an adapter. A non-positive batchSize uses DefaultBatchSize.
func New(s store.Store, e embedder.Embedder, batchSize int, log *slog.Logger) *Adapter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{store: s, embedder: e, batchSize: batchSize, log: log}
}

// genSep separates the escaped repository id from the generation.
const genSep = "#"

var idEscaper = strings.NewReplacer("%", "%25", genSep, "%23")

// Namespace returns the physical namespace of one generation. The
// repository id is escaped so that genSep only ever appears once.
func Namespace(repoID, generation string) string {
	return idEscaper.Replace(repoID) + genSep + generation
}

// ChunkID derives a stable identifier from the repository, file and
// position of a chunk.
func ChunkID(repoID, filePath string, ordinal int) string {
	h := sha256.Sum256([]byte(repoID + "\x00" + filePath + "\x00" + strconv.Itoa(ordinal)))
	return hex.EncodeToString(h[:])[:32]
}

// CheckModel records the embedding model in the store and reports
// ErrModelChanged when vectors from another model are already stored.
func (a *Adapter) CheckModel(ctx context.Context) error {
	stored, err := a.store.GetMeta(ctx, modelMetaKey)
	if err != nil {
		return &IndexError{Op: "read model", Err: err}
	}
	current := a.embedder.Model()
	if stored != "" && stored != current {
		return fmt.Errorf("%w: stored vectors use %q, configured model is %q", ErrModelChanged, stored, current)
	}
	if stored == "" {
		if err := a.store.SetMeta(ctx, modelMetaKey, current); err != nil {
			return &IndexError{Op: "write model", Err: err}
		}
	}
	return nil
}

// ResetModel records the configured model as the stored one.
func (a *Adapter) ResetModel(ctx context.Context) error {
	return a.store.SetMeta(ctx, modelMetaKey, a.embedder.Model())
}

// Upsert embeds chunks in batches and writes them to a new generation.
// On failure the partial generation is removed.
func (a *Adapter) Upsert(ctx context.Context, repoID, generation string, chunks []chunker.Chunk, progress ProgressFunc) (int, error) {
	ns := Namespace(repoID, generation)
	total := len(chunks)
	for start := 0; start < total; start += a.batchSize {
		end := min(start+a.batchSize, total)
		if err := a.upsertBatch(ctx, repoID, ns, chunks[start:end]); err != nil {
			if derr := a.store.DeleteNamespace(context.WithoutCancel(ctx), ns); derr != nil {
				a.log.Warn("remove partial generation", "repo", repoID, "generation", generation, "err", derr)
			}
			return 0, &IndexError{Op: "upsert", RepoID: repoID, Err: err}
		}
		if progress != nil {
			progress(end, total)
		}
	}
	return total, nil
}

func (a *Adapter) upsertBatch(ctx context.Context, repoID, ns string, batch []chunker.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.EmbeddingText()
	}
	vecs, err := a.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("%w: expected %d embeddings, got %d", embedder.ErrEmbedding, len(batch), len(vecs))
	}

	records := make([]store.Record, len(batch))
	for i, c := range batch {
		records[i] = store.Record{
			ID:     ChunkID(repoID, c.FilePath, c.Ordinal),
			Vector: vecs[i],
			Metadata: store.Metadata{
				RepoID:     repoID,
				FilePath:   c.FilePath,
				Language:   c.Language,
				StartLine:  c.StartLine,
				EndLine:    c.EndLine,
				SymbolName: c.SymbolName,
				Kind:       c.Kind,
				Ordinal:    c.Ordinal,
				Content:    c.Content,
			},
		}
	}
	return a.store.Upsert(ctx, ns, records)
}

// Query returns the k chunks most similar to vector.
func (a *Adapter) Query(ctx context.Context, repoID, generation string, vector []float32, k int) ([]Result, error) {
	hits, err := a.store.Query(ctx, Namespace(repoID, generation), vector, k)
	if err != nil {
		return nil, &IndexError{Op: "query", RepoID: repoID, Err: err}
	}
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{Chunk: fromRecord(h.Record), Score: h.Score}
	}
	return out, nil
}

// Search embeds text and returns the k most similar chunks.
func (a *Adapter) Search(ctx context.Context, repoID, generation, text string, k int) ([]Result, error) {
	vec, err := embedder.EmbedOne(ctx, a.embedder, text)
	if err != nil {
		return nil, &IndexError{Op: "embed query", RepoID: repoID, Err: err}
	}
	return a.Query(ctx, repoID, generation, vec, k)
}

// Chunks returns every chunk of a generation ordered by path and ordinal.
func (a *Adapter) Chunks(ctx context.Context, repoID, generation string) ([]Chunk, error) {
	records, err := a.store.List(ctx, Namespace(repoID, generation))
	if err != nil {
		return nil, &IndexError{Op: "list", RepoID: repoID, Err: err}
	}
	out := make([]Chunk, len(records))
	for i, r := range records {
		out[i] = fromRecord(r)
	}
	return out, nil
}

// Count returns the number of chunks in a generation.
func (a *Adapter) Count(ctx context.Context, repoID, generation string) (int, error) {
	n, err := a.store.Count(ctx, Namespace(repoID, generation))
	if err != nil {
		return 0, &IndexError{Op: "count", RepoID: repoID, Err: err}
	}
	return n, nil
}

// DeleteGeneration removes one generation.
func (a *Adapter) DeleteGeneration(ctx context.Context, repoID, generation string) error {
	if err := a.store.DeleteNamespace(ctx, Namespace(repoID, generation)); err != nil {
		return &IndexError{Op: "delete generation", RepoID: repoID, Err: err}
	}
	return nil
}

// DeleteNamespace removes every generation of a repository.
func (a *Adapter) DeleteNamespace(ctx context.Context, repoID string) error {
	return a.PruneGenerations(ctx, repoID, "")
}

// PruneGenerations removes every generation of a repository except keep.
func (a *Adapter) PruneGenerations(ctx context.Context, repoID, keep string) error {
	gens, err := a.Generations(ctx, repoID)
	if err != nil {
		return err
	}
	for _, g := range gens {
		if g == keep {
			continue
		}
		if err := a.DeleteGeneration(ctx, repoID, g); err != nil {
			return err
		}
	}
	return nil
}

// Generations lists the stored generations of a repository.
func (a *Adapter) Generations(ctx context.Context, repoID string) ([]string, error) {
	nss, err := a.store.Namespaces(ctx)
	if err != nil {
		return nil, &IndexError{Op: "list namespaces", RepoID: repoID, Err: err}
	}
	prefix := idEscaper.Replace(repoID) + genSep
	var gens []string
	for _, ns := range nss {
		gen, ok := strings.CutPrefix(ns, prefix)
		if ok && gen != "" && !strings.Contains(gen, genSep) {
			gens = append(gens, gen)
		}
	}
	return gens, nil
}

func fromRecord(r store.Record) Chunk {
	m := r.Metadata
	return Chunk{
		ID:         r.ID,
		RepoID:     m.RepoID,
		FilePath:   m.FilePath,
		Language:   m.Language,
		StartLine:  m.StartLine,
		EndLine:    m.EndLine,
		SymbolName: m.SymbolName,
		Kind:       m.Kind,
		Ordinal:    m.Ordinal,
		Content:    m.Content,
	}
}
