package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// File keeps every item in memory and persists the whole set to a JSONL
// file, one {"key","value"} object per line, after each write.
type File struct {
	mu    sync.RWMutex
	path  string
	items map[string]string
}

type fileLine struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OpenFile loads path if it exists. Malformed lines are skipped.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, items: make(map[string]string)}
	lines, err := readJSONL(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, l := range lines {
		if l.Key != "" {
			f.items[l.Key] = l.Value
		}
	}
	return f, nil
}

// GetItem implements types.Storage.
func (f *File) GetItem(key string) (string, error) {
	if key == "" {
		return "", types.ErrInvalidKey
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.items[key]
	if !ok {
		return "", types.ErrNotFound
	}
	return v, nil
}

// SetItem implements types.Storage.
func (f *File) SetItem(key, value string) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	next := maps.Clone(f.items)
	next[key] = value
	return f.commitLocked(next)
}

// RemoveItem implements types.Storage.
func (f *File) RemoveItem(key string) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[key]; !ok {
		return nil
	}
	next := maps.Clone(f.items)
	delete(next, key)
	return f.commitLocked(next)
}

// Keys returns the stored keys with the given prefix, sorted.
func (f *File) Keys(prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return matchKeys(f.items, prefix), nil
}

// Close is a no-op; every write is already on disk.
func (f *File) Close() error { return nil }

// commitLocked writes items to disk and only then makes them current, so a
// failed write leaves memory matching the file.
func (f *File) commitLocked(items map[string]string) error {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]fileLine, len(keys))
	for i, k := range keys {
		lines[i] = fileLine{Key: k, Value: items[k]}
	}
	if err := writeJSONL(f.path, lines); err != nil {
		return err
	}
	f.items = items
	return nil
}

func readJSONL(path string) ([]fileLine, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer fh.Close()

	// Lines have no length limit; a collection entry can be many megabytes.
	var lines []fileLine
	r := bufio.NewReader(fh)
	for {
		raw, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(raw)) > 0 {
			var l fileLine
			if json.Unmarshal(raw, &l) == nil {
				lines = append(lines, l)
			}
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
}

// writeJSONL replaces path atomically: temp file, fsync, rename.
func writeJSONL(path string, lines []fileLine) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(step string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", step, err)
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			return fail("writing line", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
