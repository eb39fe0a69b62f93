package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store with brute-force search.
type Memory struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Record
	meta       map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		namespaces: make(map[string]map[string]Record),
		meta:       make(map[string]string),
	}
}

func (m *Memory) Upsert(ctx context.Context, namespace string, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record)
		m.namespaces[namespace] = ns
	}
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		ns[r.ID] = r
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, namespace string, vector []float32, k int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.namespaces[namespace]))
	for _, r := range m.namespaces[namespace] {
		if len(r.Vector) != len(vector) {
			return nil, fmt.Errorf("%w: query has %d, stored has %d", ErrDimensionMismatch, len(vector), len(r.Vector))
		}
		out := r
		out.Vector = nil
		hits = append(hits, Hit{Record: out, Score: CosineSimilarity(vector, r.Vector)})
	}
	return rank(hits, k), nil
}

func (m *Memory) List(ctx context.Context, namespace string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.namespaces[namespace]))
	for _, r := range m.namespaces[namespace] {
		r.Vector = nil
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

func (m *Memory) Count(ctx context.Context, namespace string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace]), nil
}

func (m *Memory) DeleteNamespace(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

func (m *Memory) Namespaces(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.namespaces))
	for ns, records := range m.namespaces {
		if len(records) > 0 {
			out = append(out, ns)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) GetMeta(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta[key], nil
}

func (m *Memory) SetMeta(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	return nil
}

func (m *Memory) Close() error { return nil }
