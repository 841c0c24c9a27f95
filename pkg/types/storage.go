package types

import "errors"

// Storage is process-wide keyed string storage used for cache snapshots.
// There is no locking across writers; the last SetItem for a key wins.
type Storage interface {
	// GetItem returns the stored value. Returns ErrNotFound when the key
	// has no value.
	GetItem(key string) (string, error)

	// SetItem stores value under key, replacing any previous value.
	SetItem(key, value string) error

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(key string) error
}

// Storage errors.
var (
	ErrNotFound   = errors.New("key not found")
	ErrInvalidKey = errors.New("key must not be empty")
)
