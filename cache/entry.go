package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is the stored envelope for a cached value. An entry whose
// ExpiresAt is in the past is logically absent: any read must treat it as
// a miss and remove it.
type Entry struct {
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewEntry builds an envelope for value. A ttl <= 0 produces an entry
// that never expires.
func NewEntry(value []byte, ttl time.Duration) Entry {
	now := time.Now()
	e := Entry{Value: value, CreatedAt: now}
	if ttl > 0 {
		exp := now.Add(ttl)
		e.ExpiresAt = &exp
	}
	return e
}

// Expired reports whether the entry is logically absent at the given time.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Shared zstd coders; both are safe for concurrent use via
// EncodeAll/DecodeAll.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeEntry serializes the envelope, optionally compressing the whole
// serialized form.
func EncodeEntry(e Entry, compress bool) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("cache: encoding entry: %w", err)
	}
	if compress {
		data = zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	}
	return data, nil
}

// DecodeEntry deserializes an envelope previously produced by
// EncodeEntry with the same compression flag.
func DecodeEntry(data []byte, compressed bool) (Entry, error) {
	if compressed {
		var err error
		if data, err = zstdDecoder.DecodeAll(data, nil); err != nil {
			return Entry{}, fmt.Errorf("cache: decompressing entry: %w", err)
		}
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("cache: decoding entry: %w", err)
	}
	return e, nil
}
