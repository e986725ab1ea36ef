package config

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies a backend implementation. The set is closed: adding a
// backend means adding a constant here and a constructor arm in the cache
// package factory.
type Kind string

// Supported backend kinds.
const (
	KindMemory    Kind = "memory"
	KindDisk      Kind = "disk"
	KindMemcached Kind = "memcached"
	KindS3        Kind = "s3"
)

// Valid reports whether k names a known backend kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMemory, KindDisk, KindMemcached, KindS3:
		return true
	}
	return false
}

// Sentinel errors for settings validation.
var (
	ErrUnknownBackend = errors.New("config: unknown backend kind")
	ErrUnknownProfile = errors.New("config: unknown profile")
)

// MemcachedSettings configures the memcached backend.
type MemcachedSettings struct {
	// Servers lists memcached addresses in host:port form.
	Servers []string `yaml:"servers"`
}

// S3Settings configures the S3 backend.
type S3Settings struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// BreakerSettings configures the circuit breaker guarding backend I/O.
type BreakerSettings struct {
	Enabled bool `yaml:"enabled"`

	// Threshold is the number of consecutive failures before the
	// breaker opens. Zero means the backend default.
	Threshold int `yaml:"threshold"`

	// Cooldown is how long the breaker stays open before probing the
	// backend again. Zero means the backend default.
	Cooldown time.Duration `yaml:"cooldown"`
}

// Settings holds every knob the cache consumes. The cache treats a
// Settings value as immutable once a backend has been constructed from it.
type Settings struct {
	// Backend selects the storage implementation.
	Backend Kind `yaml:"backend"`

	// TTL is the default time-to-live for stored entries.
	// Zero means entries never expire.
	TTL time.Duration `yaml:"ttl"`

	// MaxSize bounds the memory backend's entry count. Zero means
	// unbounded.
	MaxSize int `yaml:"max_size"`

	// BasePath is the disk backend's root directory.
	BasePath string `yaml:"base_path"`

	// Compression enables whole-envelope zstd compression for backends
	// that serialize entries.
	Compression bool `yaml:"compression"`

	// KeyPrefix is prepended to every generated cache key.
	KeyPrefix string `yaml:"key_prefix"`

	Memcached MemcachedSettings `yaml:"memcached"`
	S3        S3Settings        `yaml:"s3"`
	Breaker   BreakerSettings   `yaml:"circuit_breaker"`

	// LogLevel controls the structured logger: debug|info|warn|error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the baseline settings: in-process memory backend, one
// hour TTL, warn-level logging.
func Default() Settings {
	return Settings{
		Backend:   KindMemory,
		TTL:       time.Hour,
		BasePath:  ".cache/retain",
		KeyPrefix: "retain",
		LogLevel:  "warn",
	}
}

// Profile returns a named settings preset layered over Default.
//
// "dev" uses the disk backend with a short TTL and debug logging, "test"
// uses a small bounded memory backend with no expiry, and "prod" uses the
// memory backend with compression enabled for any serializing backend
// swapped in later.
func Profile(name string) (Settings, error) {
	s := Default()
	switch name {
	case "dev":
		s.Backend = KindDisk
		s.TTL = 5 * time.Minute
		s.LogLevel = "debug"
	case "test":
		s.TTL = 0
		s.MaxSize = 128
		s.LogLevel = "error"
	case "prod":
		s.Compression = true
		s.Breaker.Enabled = true
	default:
		return Settings{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return s, nil
}

// Validate checks the settings for internal consistency. Backend-specific
// requirements (bucket names, server lists) are checked at construction
// time by the backend itself, since only the selected backend's settings
// matter.
func (s Settings) Validate() error {
	if !s.Backend.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, s.Backend)
	}
	if s.TTL < 0 {
		return fmt.Errorf("config: ttl must not be negative, got %s", s.TTL)
	}
	if s.MaxSize < 0 {
		return fmt.Errorf("config: max_size must not be negative, got %d", s.MaxSize)
	}
	if s.Backend == KindDisk && s.BasePath == "" {
		return errors.New("config: base_path is required for the disk backend")
	}
	switch s.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", s.LogLevel)
	}
	return nil
}
