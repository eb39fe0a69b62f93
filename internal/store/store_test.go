package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func rec(id, path string, ordinal int, vec ...float32) Record {
	return Record{
		ID:     id,
		Vector: vec,
		Metadata: Metadata{
			RepoID:    "github.com/a/b",
			FilePath:  path,
			Language:  "go",
			StartLine: ordinal*10 + 1,
			EndLine:   ordinal*10 + 10,
			Ordinal:   ordinal,
			Content:   "content of " + id,
		},
	}
}

func TestStoreUpsertQueryRanks(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Upsert(ctx, "ns1", []Record{
				rec("a", "a.go", 0, 1, 0),
				rec("b", "b.go", 0, 0.7, 0.7),
				rec("c", "c.go", 0, 0, 1),
			}))
			require.NoError(t, s.Upsert(ctx, "ns2", []Record{rec("x", "x.go", 0, 1, 0)}))

			hits, err := s.Query(ctx, "ns1", []float32{1, 0}, 2)
			require.NoError(t, err)
			require.Len(t, hits, 2)
			assert.Equal(t, "a", hits[0].ID)
			assert.Equal(t, "b", hits[1].ID)
			assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
			assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)
			assert.Equal(t, "content of a", hits[0].Metadata.Content)
			assert.Equal(t, "a.go", hits[0].Metadata.FilePath)

			// Namespaces are isolated.
			hits, err = s.Query(ctx, "ns2", []float32{1, 0}, 10)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "x", hits[0].ID)

			hits, err = s.Query(ctx, "missing", []float32{1, 0}, 10)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestStoreUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Upsert(ctx, "ns", []Record{rec("a", "a.go", 0, 1, 0)}))
			updated := rec("a", "a.go", 0, 0, 1)
			updated.Metadata.Content = "new"
			require.NoError(t, s.Upsert(ctx, "ns", []Record{updated}))

			n, err := s.Count(ctx, "ns")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			hits, err := s.Query(ctx, "ns", []float32{0, 1}, 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "new", hits[0].Metadata.Content)
			assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		})
	}
}

func TestStoreListDeleteNamespaces(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Upsert(ctx, "repo#g1", []Record{
				rec("z2", "z.go", 1, 1, 0),
				rec("a1", "a.go", 0, 1, 0),
				rec("z1", "z.go", 0, 1, 0),
			}))
			require.NoError(t, s.Upsert(ctx, "repo#g2", []Record{rec("q", "q.go", 0, 1, 0)}))

			list, err := s.List(ctx, "repo#g1")
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, []string{"a1", "z1", "z2"}, []string{list[0].ID, list[1].ID, list[2].ID})
			assert.Nil(t, list[0].Vector)

			nss, err := s.Namespaces(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"repo#g1", "repo#g2"}, nss)

			require.NoError(t, s.DeleteNamespace(ctx, "repo#g1"))
			n, err := s.Count(ctx, "repo#g1")
			require.NoError(t, err)
			assert.Zero(t, n)

			nss, err = s.Namespaces(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"repo#g2"}, nss)
		})
	}
}

func TestStoreMeta(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v, err := s.GetMeta(ctx, "embedding_model")
			require.NoError(t, err)
			assert.Empty(t, v)

			require.NoError(t, s.SetMeta(ctx, "embedding_model", "m1"))
			require.NoError(t, s.SetMeta(ctx, "embedding_model", "m2"))
			v, err = s.GetMeta(ctx, "embedding_model")
			require.NoError(t, err)
			assert.Equal(t, "m2", v)
		})
	}
}

func TestStoreTiesBrokenByID(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Upsert(ctx, "ns", []Record{
				rec("c", "c.go", 0, 1, 0),
				rec("a", "a.go", 0, 1, 0),
				rec("b", "b.go", 0, 1, 0),
			}))
			hits, err := s.Query(ctx, "ns", []float32{1, 0}, 3)
			require.NoError(t, err)
			require.Len(t, hits, 3)
			assert.Equal(t, []string{"a", "b", "c"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, "ns", []Record{rec("a", "a.go", 0, 0.5, 0.25, 0.125)}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	hits, err := s.Query(ctx, "ns", []float32{0.5, 0.25, 0.125}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestVectorSerializationRoundTrip(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, v, deserializeVector(serializeVector(v)))
	assert.Len(t, serializeVector(v), 16)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
