package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedBackend delegates storage and expiry to a memcached cluster.
// The cluster is authoritative for its own storage; this backend only
// translates the cache contract onto the memcached protocol.
type MemcachedBackend struct {
	client *memcache.Client
}

// NewMemcachedBackend connects to the given servers. Construction fails
// if no server is configured or none is reachable.
func NewMemcachedBackend(servers []string) (*MemcachedBackend, error) {
	if len(servers) == 0 {
		return nil, &ConfigError{Reason: "memcached backend requires at least one server"}
	}
	client := memcache.New(servers...)
	if err := client.Ping(); err != nil {
		return nil, &UnavailableError{Backend: "memcached", Err: err}
	}
	return &MemcachedBackend{client: client}, nil
}

// Get retrieves a value. Expiry is enforced server-side.
func (b *MemcachedBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := b.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, &StorageError{Op: "get", Key: key, Err: err}
	}
	return item.Value, true, nil
}

// Set stores a value. Expiration is whole seconds; a ttl <= 0 never
// expires, and sub-second TTLs round up so a positive TTL always expires.
func (b *MemcachedBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp int32
	if ttl > 0 {
		secs := int64((ttl + time.Second - 1) / time.Second)
		exp = int32(secs)
	}
	err := b.client.Set(&memcache.Item{Key: key, Value: value, Expiration: exp})
	if err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes a value. A miss is not an error.
func (b *MemcachedBackend) Delete(_ context.Context, key string) error {
	if err := b.client.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Clear flushes every item on every configured server.
func (b *MemcachedBackend) Clear(_ context.Context) error {
	if err := b.client.FlushAll(); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	return nil
}

// Close releases client resources.
func (b *MemcachedBackend) Close(_ context.Context) error {
	return b.client.Close()
}

// Name identifies the backend kind.
func (b *MemcachedBackend) Name() string { return "memcached" }

var _ Backend = (*MemcachedBackend)(nil)
