package cache

import (
	"context"
	"fmt"

	"github.com/jonwraymond/retain/config"
	"github.com/jonwraymond/retain/events"
)

// NewBackend constructs the backend selected by cfg.Backend. The kind set
// is closed: each kind maps to exactly one constructor, and an unknown
// kind is a configuration error.
func NewBackend(ctx context.Context, cfg config.Settings, log events.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.KindMemory:
		return NewMemoryBackend(cfg.MaxSize), nil
	case config.KindDisk:
		return NewDiskBackend(cfg.BasePath, cfg.Compression, log)
	case config.KindMemcached:
		return NewMemcachedBackend(cfg.Memcached.Servers)
	case config.KindS3:
		return NewS3Backend(ctx, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Region, cfg.Compression, log)
	default:
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown backend kind %q", cfg.Backend)}
	}
}
