// Package store persists chunk vectors in namespaces and answers
// nearest-neighbour queries.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when a vector length does not match the
// rest of its namespace.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Store persists vectors grouped by namespace.
type Store interface {
	// Upsert inserts or replaces records by ID within a namespace.
	Upsert(ctx context.Context, namespace string, records []Record) error
	// Query returns up to k records ranked by descending cosine similarity.
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]Hit, error)
	// List returns every record in a namespace without vectors, ordered by
	// file path then ordinal.
	List(ctx context.Context, namespace string) ([]Record, error)
	// Count returns the number of records in a namespace.
	Count(ctx context.Context, namespace string) (int, error)
	// DeleteNamespace removes every record in a namespace.
	DeleteNamespace(ctx context.Context, namespace string) error
	// Namespaces lists the non-empty namespaces, sorted.
	Namespaces(ctx context.Context) ([]string, error)
	// GetMeta returns a metadata value by key, or "" if not set.
	GetMeta(ctx context.Context, key string) (string, error)
	// SetMeta sets a metadata key-value pair.
	SetMeta(ctx context.Context, key, value string) error
	// Close releases the store.
	Close() error
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when lengths differ or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rank sorts hits by descending score, then ascending ID, and keeps k.
func rank(hits []Hit, k int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Metadata, records[j].Metadata
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return records[i].ID < records[j].ID
	})
}

// serializeVector encodes v as little-endian float32, the layout sqlite-vec
// reads.
func serializeVector(v []float32) []byte {
	blob := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(x))
	}
	return blob
}

func deserializeVector(blob []byte) []float32 {
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v
}
