package storage

import (
	"fmt"
	"path/filepath"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Store is a types.Storage that can also enumerate its keys and be closed.
type Store interface {
	types.Storage
	Keys(prefix string) ([]string, error)
	Close() error
}

// File names used under the data directory.
const (
	SQLiteFileName = "cache.db"
	JSONLFileName  = "cache.jsonl"
)

// Open returns the store selected by backend, rooted in dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case types.CacheSQLite, "":
		return OpenSQLite(filepath.Join(dataDir, SQLiteFileName))
	case types.CacheJSONL:
		return OpenFile(filepath.Join(dataDir, JSONLFileName))
	case types.CacheMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrCacheBackendInvalid, backend)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*File)(nil)
)
