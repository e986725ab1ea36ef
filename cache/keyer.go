package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// DefaultKeyPrefix is used when a keyer has no explicit prefix.
const DefaultKeyPrefix = "retain"

// Keyer derives deterministic cache keys from a function identity and its
// arguments.
//
// Contract:
// - Determinism: equal inputs must produce the same key within a process,
//   regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key derives a cache key from a function identity, positional
	// arguments in call order, and named arguments.
	Key(identity string, args []any, named map[string]any) (string, error)
}

// KeyFunc adapts a custom key-construction function to Keyer, bypassing
// default key derivation entirely.
type KeyFunc func(identity string, args []any, named map[string]any) (string, error)

func (f KeyFunc) Key(identity string, args []any, named map[string]any) (string, error) {
	return f(identity, args, named)
}

// DefaultKeyer derives SHA-256 based cache keys.
//
// Key format: <prefix>:<hex digest>. The digest covers the identity and a
// per-argument token, so keys have a fixed length and alphabet no matter
// what the arguments contain. Positional arguments are bound to ParamNames
// by position, so a name in Exclude is dropped whether the value arrives
// positionally or by name.
//
// Values whose serialized form is unstable across runs are the caller's
// responsibility, not a library guarantee.
type DefaultKeyer struct {
	// Prefix overrides DefaultKeyPrefix when non-empty.
	Prefix string

	// ParamNames are the wrapped function's parameter names in
	// declaration order, used to bind positional arguments for
	// exclusion.
	ParamNames []string

	// Exclude lists parameter names left out of the key.
	Exclude []string
}

// Key derives a deterministic cache key.
func (k *DefaultKeyer) Key(identity string, args []any, named map[string]any) (string, error) {
	excluded := make(map[string]bool, len(k.Exclude))
	for _, name := range k.Exclude {
		excluded[name] = true
	}

	parts := make([]string, 0, len(args)+len(named))
	for i, arg := range args {
		if i < len(k.ParamNames) && excluded[k.ParamNames[i]] {
			continue
		}
		parts = append(parts, hashValue(arg))
	}

	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if excluded[name] {
			continue
		}
		parts = append(parts, name+":"+hashValue(named[name]))
	}

	sum := sha256.Sum256([]byte(identity + ":" + strings.Join(parts, ":")))

	prefix := k.Prefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + ":" + hex.EncodeToString(sum[:]), nil
}

// hashValue produces a short stable token for one argument value. Values
// that cannot be canonically serialized fall back to their Go string form.
func hashValue(v any) string {
	canonical, err := canonicalize(v)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:8])
}

// canonicalize produces a deterministic JSON representation of the value.
// Maps are sorted by key to ensure consistent ordering.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}

var _ Keyer = (*DefaultKeyer)(nil)
var _ Keyer = (KeyFunc)(nil)
