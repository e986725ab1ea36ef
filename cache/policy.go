package cache

import "time"

// Policy configures expiry behavior.
type Policy struct {
	// DefaultTTL is applied when a call specifies no TTL.
	// Zero means entries never expire by default.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Override TTLs are clamped to
	// this. Zero means no maximum is enforced.
	MaxTTL time.Duration
}

// DefaultPolicy returns the default expiry policy: one hour default TTL,
// no maximum.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: time.Hour}
}

// EffectiveTTL resolves the TTL for one store: zero means "use the
// default", NoExpiry (or any negative value) means "never expire", and
// positive values are clamped to MaxTTL.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	switch {
	case ttl < 0:
		return 0
	case ttl == 0:
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}
