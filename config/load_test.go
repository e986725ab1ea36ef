package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retain.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(WithLookup(noEnv))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(s, Default()) {
		t.Errorf("Load with no sources = %+v, want defaults", s)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfigFile(t, `
backend: disk
ttl: 30m
base_path: /var/cache/retain
compression: true
key_prefix: svc
memcached:
  servers:
    - mc1:11211
    - mc2:11211
circuit_breaker:
  enabled: true
  threshold: 3
  cooldown: 10s
`)
	s, err := Load(WithFile(path), WithLookup(noEnv))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Backend != KindDisk {
		t.Errorf("Backend = %q, want disk", s.Backend)
	}
	if s.TTL != 30*time.Minute {
		t.Errorf("TTL = %v, want 30m", s.TTL)
	}
	if s.BasePath != "/var/cache/retain" {
		t.Errorf("BasePath = %q", s.BasePath)
	}
	if !s.Compression {
		t.Error("Compression should be enabled")
	}
	if s.KeyPrefix != "svc" {
		t.Errorf("KeyPrefix = %q, want svc", s.KeyPrefix)
	}
	if want := []string{"mc1:11211", "mc2:11211"}; !reflect.DeepEqual(s.Memcached.Servers, want) {
		t.Errorf("Memcached.Servers = %v, want %v", s.Memcached.Servers, want)
	}
	if !s.Breaker.Enabled || s.Breaker.Threshold != 3 || s.Breaker.Cooldown != 10*time.Second {
		t.Errorf("Breaker = %+v", s.Breaker)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(WithFile(filepath.Join(t.TempDir(), "absent.yaml")), WithLookup(noEnv))
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("missing required file returned %v, want ErrFileNotFound", err)
	}

	s, err := Load(WithFileIfPresent(filepath.Join(t.TempDir(), "absent.yaml")), WithLookup(noEnv))
	if err != nil {
		t.Fatalf("optional missing file should not fail: %v", err)
	}
	if !reflect.DeepEqual(s, Default()) {
		t.Error("optional missing file should leave defaults untouched")
	}

	bad := writeConfigFile(t, "backend: [not, a, scalar")
	if _, err := Load(WithFile(bad), WithLookup(noEnv)); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestLoad_Env(t *testing.T) {
	s, err := Load(WithLookup(envMap(map[string]string{
		"RETAIN_BACKEND":           "memcached",
		"RETAIN_TTL":               "90s",
		"RETAIN_MAX_SIZE":          "500",
		"RETAIN_COMPRESSION":       "true",
		"RETAIN_CIRCUIT_BREAKER":   "true",
		"RETAIN_KEY_PREFIX":        "edge",
		"RETAIN_LOG_LEVEL":         "debug",
		"RETAIN_MEMCACHED_SERVERS": "mc1:11211, mc2:11211 ,",
		"RETAIN_S3_BUCKET":         "cache-bucket",
		"RETAIN_S3_REGION":         "eu-west-1",
	})))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Backend != KindMemcached {
		t.Errorf("Backend = %q, want memcached", s.Backend)
	}
	if s.TTL != 90*time.Second {
		t.Errorf("TTL = %v, want 90s", s.TTL)
	}
	if s.MaxSize != 500 {
		t.Errorf("MaxSize = %d, want 500", s.MaxSize)
	}
	if !s.Compression || !s.Breaker.Enabled {
		t.Error("boolean env toggles not applied")
	}
	if want := []string{"mc1:11211", "mc2:11211"}; !reflect.DeepEqual(s.Memcached.Servers, want) {
		t.Errorf("Memcached.Servers = %v, want %v", s.Memcached.Servers, want)
	}
	if s.S3.Bucket != "cache-bucket" || s.S3.Region != "eu-west-1" {
		t.Errorf("S3 = %+v", s.S3)
	}
}

func TestLoad_EnvParseErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"bad ttl":      {"RETAIN_TTL": "soon"},
		"bad max size": {"RETAIN_MAX_SIZE": "many"},
		"bad bool":     {"RETAIN_COMPRESSION": "yep"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(WithLookup(envMap(vars))); err == nil {
				t.Error("Load should reject unparseable value")
			}
		})
	}
}

func TestLoad_Precedence(t *testing.T) {
	// Profile < file < env < override, each layer winning one knob.
	path := writeConfigFile(t, "ttl: 10m\nmax_size: 64\n")

	s, err := Load(
		WithProfile("dev"),
		WithFile(path),
		WithLookup(envMap(map[string]string{"RETAIN_MAX_SIZE": "32"})),
		WithOverride(func(s *Settings) { s.LogLevel = "error" }),
	)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Backend != KindDisk {
		t.Errorf("Backend = %q, want disk from the dev profile", s.Backend)
	}
	if s.TTL != 10*time.Minute {
		t.Errorf("TTL = %v, want the file's 10m over the profile's 5m", s.TTL)
	}
	if s.MaxSize != 32 {
		t.Errorf("MaxSize = %d, want the env's 32 over the file's 64", s.MaxSize)
	}
	if s.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want the override's error", s.LogLevel)
	}
}

func TestLoad_UnknownProfile(t *testing.T) {
	if _, err := Load(WithProfile("staging"), WithLookup(noEnv)); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("unknown profile returned %v, want ErrUnknownProfile", err)
	}
}

func TestLoad_ValidatesResult(t *testing.T) {
	_, err := Load(WithLookup(envMap(map[string]string{"RETAIN_BACKEND": "redis"})))
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("invalid merged settings returned %v, want ErrUnknownBackend", err)
	}
}
