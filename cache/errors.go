package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors for cache operations.
var (
	ErrNilManager = errors.New("cache: manager is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
	ErrClosed     = errors.New("cache: backend is closed")
)

// ConfigError indicates missing or invalid backend parameters. It is
// fatal to the call attempting first use of the backend.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache: configuration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("cache: configuration: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// UnavailableError indicates that a dependency required by a remote-style
// backend is missing or unreachable. Fatal at construction.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cache: backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// StorageError indicates an I/O failure or corrupt envelope inside a
// backend operation. The manager recovers it locally: a failed get behaves
// as a miss, a failed mutation is swallowed after being reported.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache: storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache: storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// errKind classifies an error for event reporting. The wrapped
// computation's own failures are never classified here: they propagate to
// the caller unchanged and are reported as call errors.
func errKind(err error) string {
	var ce *ConfigError
	var ue *UnavailableError
	var se *StorageError
	switch {
	case errors.As(err, &ce):
		return "config"
	case errors.As(err, &ue):
		return "unavailable"
	case errors.As(err, &se):
		return "storage"
	case errors.Is(err, ErrBreakerOpen):
		return "breaker_open"
	default:
		return "unknown"
	}
}
