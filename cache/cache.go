package cache

import (
	"context"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// NoExpiry, passed as a TTL, stores an entry that never expires even when
// a default TTL is configured.
const NoExpiry time.Duration = -1

// Backend is the storage contract for cached entries.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Get returns (nil, false, nil) on miss; expired entries are a miss and
//   are removed on discovery.
// - Set with ttl <= 0 stores an entry that never expires.
// - Delete is idempotent; deleting an absent key is not an error.
type Backend interface {
	// Get retrieves a stored value.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a stored value.
	Delete(ctx context.Context, key string) error

	// Clear removes every stored value.
	Clear(ctx context.Context) error

	// Close releases resources owned by the backend.
	Close(ctx context.Context) error

	// Name identifies the backend kind in events and logs.
	Name() string
}

// Maintainer is implemented by backends that support an explicit expired-
// entry sweep. It is exposed for external periodic scheduling and is never
// invoked automatically.
type Maintainer interface {
	// CleanupExpired removes expired and unreadable entries, returning
	// the number removed.
	CleanupExpired(ctx context.Context) (int, error)
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
