// Package checkpoint records resumable progress as key/value pairs grouped
// by namespace.
package checkpoint

import (
	"context"
	"sync"
)

// Namespaces used by the pipelines.
const (
	NamespaceEmbeddings = "embeddings"
	NamespaceCompanies  = "companies"
)

// Store persists progress. Commit must be durable before it returns so a
// crash never loses a committed key.
type Store interface {
	// Done returns the committed values for the subset of keys that exist.
	Done(ctx context.Context, ns string, keys []string) (map[string][]byte, error)
	// Commit records entries under ns, overwriting existing keys.
	Commit(ctx context.Context, ns string, entries map[string][]byte) error
	// Reset drops every key of ns.
	Reset(ctx context.Context, ns string) error
	Close() error
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) Done(_ context.Context, ns string, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte)
	bucket := m.data[ns]
	for _, k := range keys {
		if v, ok := bucket[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (m *Memory) Commit(_ context.Context, ns string, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.data[ns]
	if !ok {
		bucket = make(map[string][]byte, len(entries))
		m.data[ns] = bucket
	}
	for k, v := range entries {
		bucket[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *Memory) Reset(_ context.Context, ns string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, ns)
	return nil
}

func (m *Memory) Close() error { return nil }
