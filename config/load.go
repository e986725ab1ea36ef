package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all recognized environment variables.
const EnvPrefix = "RETAIN_"

// ErrFileNotFound is returned by Load when a required config file is
// missing.
var ErrFileNotFound = errors.New("config: file not found")

type loader struct {
	profile   string
	file      string
	fileOpt   bool
	lookup    func(string) (string, bool)
	overrides []func(*Settings)
}

// Option customizes Load.
type Option func(*loader)

// WithProfile starts from a named preset instead of Default.
func WithProfile(name string) Option {
	return func(l *loader) { l.profile = name }
}

// WithFile layers a YAML config file over the defaults. ${VAR} references
// in the file are expanded from the environment before parsing. Load fails
// if the file does not exist.
func WithFile(path string) Option {
	return func(l *loader) { l.file = path; l.fileOpt = false }
}

// WithFileIfPresent is WithFile, except a missing file is not an error.
func WithFileIfPresent(path string) Option {
	return func(l *loader) { l.file = path; l.fileOpt = true }
}

// WithLookup replaces the environment source. Intended for tests.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(l *loader) { l.lookup = fn }
}

// WithOverride applies a programmatic override after all other sources.
func WithOverride(fn func(*Settings)) Option {
	return func(l *loader) { l.overrides = append(l.overrides, fn) }
}

// Load builds Settings by merging, in increasing precedence: defaults (or
// a profile), a YAML file, RETAIN_* environment variables, and
// programmatic overrides. The result is validated before being returned.
func Load(opts ...Option) (Settings, error) {
	l := loader{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&l)
	}

	s := Default()
	if l.profile != "" {
		var err error
		if s, err = Profile(l.profile); err != nil {
			return Settings{}, err
		}
	}

	if l.file != "" {
		if err := mergeFile(&s, l.file, l.fileOpt, l.lookup); err != nil {
			return Settings{}, err
		}
	}

	if err := mergeEnv(&s, l.lookup); err != nil {
		return Settings{}, err
	}

	for _, fn := range l.overrides {
		fn(&s)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func mergeFile(s *Settings, path string, optional bool, lookup func(string) (string, bool)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if optional {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	expanded, err := expandEnv(string(data), lookup)
	if err != nil {
		return fmt.Errorf("config: expanding %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(expanded), s); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func mergeEnv(s *Settings, lookup func(string) (string, bool)) error {
	var err error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("BASE_PATH", &s.BasePath)
	str("KEY_PREFIX", &s.KeyPrefix)
	str("LOG_LEVEL", &s.LogLevel)
	str("S3_BUCKET", &s.S3.Bucket)
	str("S3_PREFIX", &s.S3.Prefix)
	str("S3_REGION", &s.S3.Region)

	if v, ok := lookup(EnvPrefix + "BACKEND"); ok {
		s.Backend = Kind(v)
	}
	if v, ok := lookup(EnvPrefix + "MEMCACHED_SERVERS"); ok {
		s.Memcached.Servers = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "TTL"); ok {
		if s.TTL, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("config: %sTTL: %w", EnvPrefix, err)
		}
	}
	if v, ok := lookup(EnvPrefix + "MAX_SIZE"); ok {
		if s.MaxSize, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("config: %sMAX_SIZE: %w", EnvPrefix, err)
		}
	}
	if v, ok := lookup(EnvPrefix + "COMPRESSION"); ok {
		if s.Compression, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("config: %sCOMPRESSION: %w", EnvPrefix, err)
		}
	}
	if v, ok := lookup(EnvPrefix + "CIRCUIT_BREAKER"); ok {
		if s.Breaker.Enabled, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("config: %sCIRCUIT_BREAKER: %w", EnvPrefix, err)
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
