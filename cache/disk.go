package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/retain/events"
)

const cacheFileSuffix = ".cache"

// DiskBackend stores one file per key under a root directory, durable
// across process restarts. Writes go to a temporary sibling file and are
// renamed into place, so a reader never observes a partially written
// entry. Keys map to paths through a SHA-256 digest; the first two hex
// characters form a shard subdirectory to bound directory fan-out.
//
// Concurrency: a per-path lock table serializes read-modify-write
// sequences on a single key while letting operations on distinct keys
// proceed. Locks are never removed during the backend's lifetime except
// by Clear; the table's growth is bounded by the key space, which is
// finite in practice.
type DiskBackend struct {
	base     string
	compress bool
	log      events.Logger

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex
}

// NewDiskBackend creates the root directory if needed and returns a disk
// backend rooted there. A nil logger disables logging.
func NewDiskBackend(base string, compress bool, log events.Logger) (*DiskBackend, error) {
	if base == "" {
		return nil, &ConfigError{Reason: "disk backend requires a base path"}
	}
	if log == nil {
		log = events.NopLogger{}
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, &StorageError{Op: "init", Err: err}
	}
	return &DiskBackend{
		base:     base,
		compress: compress,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// path maps a key to its storage location:
// <base>/<first-2-hex-of-digest>/<full-hex-digest>.cache
func (b *DiskBackend) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])
	return filepath.Join(b.base, digest[:2], digest+cacheFileSuffix)
}

// lockFor returns the lock for one path, creating it on first access.
func (b *DiskBackend) lockFor(path string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[path]
	if !ok {
		l = &sync.Mutex{}
		b.locks[path] = l
	}
	return l
}

// Get retrieves a value. A corrupt envelope is logged and treated as a
// miss rather than propagated; an expired entry is removed and reported
// as a miss.
func (b *DiskBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := b.path(key)
	l := b.lockFor(path)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, &StorageError{Op: "get", Key: key, Err: err}
	}

	entry, err := DecodeEntry(data, b.compress)
	if err != nil {
		b.log.Warn(ctx, "unreadable cache file, treating as miss",
			events.F("path", path), events.F("error", err.Error()))
		return nil, false, nil
	}

	if entry.Expired(time.Now()) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			b.log.Warn(ctx, "removing expired cache file failed",
				events.F("path", path), events.F("error", err.Error()))
		}
		return nil, false, nil
	}

	return entry.Value, true, nil
}

// Set stores a value. The envelope is written to a temporary sibling file
// and atomically renamed over the target, so the visible file is always
// either the previous complete entry or the new complete entry.
func (b *DiskBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := EncodeEntry(NewEntry(value, ttl), b.compress)
	if err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}

	path := b.path(key)
	l := b.lockFor(path)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &StorageError{Op: "set", Key: key, Err: err}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		os.Remove(tmp)
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &StorageError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// Delete removes a value. Already-absent files are ignored.
func (b *DiskBackend) Delete(_ context.Context, key string) error {
	path := b.path(key)
	l := b.lockFor(path)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Clear removes the entire directory tree and recreates it empty. It
// holds the table lock for the whole operation and acquires every known
// per-path lock, in sorted path order, so in-flight operations finish
// before the tree is destroyed and later ones see the fresh table.
func (b *DiskBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	paths := make([]string, 0, len(b.locks))
	for p := range b.locks {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		b.locks[p].Lock()
	}
	defer func() {
		for i := len(paths) - 1; i >= 0; i-- {
			b.locks[paths[i]].Unlock()
		}
		// Fresh locks are created lazily from here on.
		b.locks = make(map[string]*sync.Mutex)
	}()

	if err := os.RemoveAll(b.base); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	if err := os.MkdirAll(b.base, 0o755); err != nil {
		return &StorageError{Op: "clear", Err: err}
	}
	return nil
}

// Close releases nothing; files stay on disk for the next process.
func (b *DiskBackend) Close(_ context.Context) error { return nil }

// Name identifies the backend kind.
func (b *DiskBackend) Name() string { return "disk" }

// CleanupExpired walks every shard directory and removes files that are
// expired or unreadable, returning the number removed. Unreadable files
// are deleted so one corrupt entry cannot linger forever.
func (b *DiskBackend) CleanupExpired(ctx context.Context) (int, error) {
	shards, err := os.ReadDir(b.base)
	if err != nil {
		return 0, &StorageError{Op: "cleanup", Err: err}
	}

	count := 0
	now := time.Now()
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		dir := filepath.Join(b.base, shard.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return count, err
			}
			if f.IsDir() || !strings.HasSuffix(f.Name(), cacheFileSuffix) {
				continue
			}
			path := filepath.Join(dir, f.Name())
			if b.cleanupFile(ctx, path, now) {
				count++
			}
		}
	}
	return count, nil
}

// cleanupFile removes one file if it is expired or unreadable, under its
// path lock. Reports whether the file was removed.
func (b *DiskBackend) cleanupFile(ctx context.Context, path string, now time.Time) bool {
	l := b.lockFor(path)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	entry, err := DecodeEntry(data, b.compress)
	if err != nil {
		b.log.Warn(ctx, "removing unreadable cache file",
			events.F("path", path), events.F("error", err.Error()))
		return os.Remove(path) == nil
	}
	if entry.Expired(now) {
		return os.Remove(path) == nil
	}
	return false
}

var _ Backend = (*DiskBackend)(nil)
var _ Maintainer = (*DiskBackend)(nil)
