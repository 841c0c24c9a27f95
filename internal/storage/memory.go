// Package storage provides keyed string stores for collection caches: an
// in-process map, a SQLite database and a JSONL file.
package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Memory is a map-backed store. The zero value is not usable; call NewMemory.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

// GetItem implements types.Storage.
func (m *Memory) GetItem(key string) (string, error) {
	if key == "" {
		return "", types.ErrInvalidKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return "", types.ErrNotFound
	}
	return v, nil
}

// SetItem implements types.Storage.
func (m *Memory) SetItem(key, value string) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	m.mu.Lock()
	m.items[key] = value
	m.mu.Unlock()
	return nil
}

// RemoveItem implements types.Storage.
func (m *Memory) RemoveItem(key string) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Keys returns the stored keys with the given prefix, sorted.
func (m *Memory) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return matchKeys(m.items, prefix), nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func matchKeys(items map[string]string, prefix string) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
