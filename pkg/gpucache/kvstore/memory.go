// Package kvstore provides concrete blobcache.LoadFunc/blobcache.StoreFunc
// implementations over a handful of real key/value backends, so that a
// gpucache.BlobCache can be pointed at something other than a test double.
package kvstore

import (
	"sync"

	"github.com/buildbarn/gpucache/pkg/gpucache/blobcache"
)

// LoadFunc and StoreFunc are blobcache's callback types, which every
// backend and decorator in this package implements and wraps.
type (
	LoadFunc  = blobcache.LoadFunc
	StoreFunc = blobcache.StoreFunc
)

// Memory is an in-memory key/value backend, useful for tests and for
// processes that only want a best-effort, non-persistent cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{entries: map[string][]byte{}}
}

// Load implements blobcache.LoadFunc.
func (m *Memory) Load(key []byte, out []byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[string(key)]
	if !ok {
		return 0
	}
	if out == nil {
		return len(v)
	}
	copy(out, v)
	return len(v)
}

// Store implements blobcache.StoreFunc.
func (m *Memory) Store(key []byte, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[string(key)] = append([]byte(nil), value...)
}
