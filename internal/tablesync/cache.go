package tablesync

import (
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// CacheVersion tags cache entries. Entries written with another version are
// treated as misses.
const CacheVersion = 1

// CacheEntry is the persisted snapshot of a collection.
type CacheEntry struct {
	Version   int            `json:"version"`
	Data      []types.Record `json:"data"`
	Metadata  CacheMetadata  `json:"metadata"`
	Timestamp time.Time      `json:"timestamp"`
}

// CacheMetadata records how the cached data was fetched.
type CacheMetadata struct {
	Total  int               `json:"total"`
	Params map[string]string `json:"params,omitempty"`
}

// ReadCache loads the entry stored under key. Any failure, including a
// version mismatch, reports a miss.
func ReadCache(store types.Storage, key string) (CacheEntry, bool) {
	var entry CacheEntry
	if store == nil || key == "" {
		return entry, false
	}
	raw, err := store.GetItem(key)
	if err != nil || raw == "" {
		return entry, false
	}
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return CacheEntry{}, false
	}
	if entry.Version != CacheVersion || entry.Data == nil {
		return CacheEntry{}, false
	}
	return entry, true
}

type cache struct {
	store types.Storage
	key   string
	log   zerolog.Logger

	mu      sync.Mutex
	written uint64 // generation of the newest entry written
}

func newCache(store types.Storage, key string, log zerolog.Logger) *cache {
	if store == nil || key == "" {
		return nil
	}
	return &cache{store: store, key: key, log: log}
}

func (c *cache) read() (CacheEntry, bool) {
	if c == nil {
		return CacheEntry{}, false
	}
	entry, ok := ReadCache(c.store, c.key)
	if !ok {
		c.log.Debug().Str("cache_key", c.key).Msg("cache miss")
	}
	return entry, ok
}

// write stores the result of fetch generation gen. Writes from older
// generations than one already stored are dropped.
func (c *cache) write(gen uint64, data []types.Record, total int, params map[string]string, at time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen < c.written {
		return
	}
	c.written = gen
	entry := CacheEntry{
		Version:   CacheVersion,
		Data:      data,
		Metadata:  CacheMetadata{Total: total, Params: params},
		Timestamp: at.UTC(),
	}
	if entry.Data == nil {
		entry.Data = []types.Record{}
	}
	b, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn().Err(err).Str("cache_key", c.key).Msg("encoding cache entry")
		return
	}
	if err := c.store.SetItem(c.key, string(b)); err != nil {
		c.log.Warn().Err(err).Str("cache_key", c.key).Msg("writing cache entry")
	}
}

func (c *cache) remove() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveItem(c.key); err != nil && !errors.Is(err, types.ErrNotFound) {
		c.log.Warn().Err(err).Str("cache_key", c.key).Msg("removing cache entry")
	}
}
