package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is a process-local bounded store with least-recently-used
// eviction. All operations run under one mutex: map mutation, including
// the eviction scan, must be atomic with respect to concurrent readers
// and writers.
type MemoryBackend struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	value      []byte
	expiresAt  time.Time // zero means never expires
	lastAccess time.Time
}

// NewMemoryBackend creates a memory backend holding at most maxSize
// entries. A maxSize of zero means unbounded.
func NewMemoryBackend(maxSize int) *MemoryBackend {
	return &MemoryBackend{
		maxSize: maxSize,
		entries: make(map[string]*memoryEntry),
	}
}

// Get retrieves a value, refreshing its last-access time. An expired
// entry is removed and reported as a miss.
func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(b.entries, key)
		return nil, false, nil
	}

	e.lastAccess = time.Now()
	return e.value, true, nil
}

// Set stores a value. When at capacity and the key is new, the entry with
// the oldest last-access time is evicted first.
func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxSize > 0 && len(b.entries) >= b.maxSize {
		if _, exists := b.entries[key]; !exists {
			b.evictOldest()
		}
	}

	now := time.Now()
	e := &memoryEntry{value: value, lastAccess: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	b.entries[key] = e
	return nil
}

// Delete removes a value. Idempotent.
func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Clear removes every value.
func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]*memoryEntry)
	return nil
}

// Close releases nothing; the map is garbage collected with the backend.
func (b *MemoryBackend) Close(_ context.Context) error { return nil }

// Name identifies the backend kind.
func (b *MemoryBackend) Name() string { return "memory" }

// Len reports the current entry count.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Contains reports whether key is physically present, without touching
// its last-access time.
func (b *MemoryBackend) Contains(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[key]
	return ok
}

// evictOldest removes the entry with the oldest last-access time. Ties
// are broken arbitrarily. Caller holds the mutex.
func (b *MemoryBackend) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range b.entries {
		if oldestKey == "" || e.lastAccess.Before(oldest) {
			oldestKey = key
			oldest = e.lastAccess
		}
	}
	if oldestKey != "" {
		delete(b.entries, oldestKey)
	}
}

var _ Backend = (*MemoryBackend)(nil)
