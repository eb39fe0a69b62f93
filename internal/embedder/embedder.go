// Package embedder computes vector embeddings for chunk text.
package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrEmbedding matches every embedding failure.
	ErrEmbedding = errors.New("embedding failed")
	// ErrUnsupportedProvider is returned by New for unknown providers.
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
)

// Embedder turns texts into vectors. The result has the same length and
// order as the input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model names the embedding model; vectors from different models are
	// not comparable.
	Model() string
	// Dimension is the vector length, or 0 when not yet known.
	Dimension() int
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", ErrEmbedding, len(vecs))
	}
	return vecs[0], nil
}

// Cached wraps an embedder with an in-memory LRU keyed by content hash.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU holding up to size vectors.
func NewCached(inner Embedder, size int) *Cached {
	if size <= 0 {
		size = 10000
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cached{inner: inner, cache: cache}
}

func (c *Cached) Model() string  { return c.inner.Model() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Len returns the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }

// Embed serves cached vectors and sends only the misses to the wrapped
// embedder.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if v, ok := c.cache.Get(ComputeHash(text)); ok {
			out[i] = clone(v)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbedding, len(missTexts), len(vecs))
	}
	for j, v := range vecs {
		c.cache.Add(ComputeHash(missTexts[j]), clone(v))
		out[missIdx[j]] = v
	}
	return out, nil
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// ComputeHash computes the SHA-256 hash of text for caching.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Normalize scales v to unit length in place. Zero vectors are unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
