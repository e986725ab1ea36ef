package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/retain/config"
	"github.com/jonwraymond/retain/events"
)

// Manager orchestrates one backend: it constructs it lazily from settings
// on first use, serializes every operation's event emission, and isolates
// backend instability from callers. A failed get behaves as a miss and a
// failed mutation is swallowed, both after an error event; only backend
// construction failures surface to the caller, so a broken cache can
// never break the cached computation itself.
type Manager struct {
	settings config.Settings
	emitter  *events.Emitter
	log      events.Logger
	policy   Policy
	breaker  *Breaker

	mu      sync.Mutex
	backend Backend
	closed  bool
}

// ManagerOption customizes NewManager.
type ManagerOption func(*Manager)

// WithEmitter wires an event emitter. Without one, events are dropped.
func WithEmitter(e *events.Emitter) ManagerOption {
	return func(m *Manager) { m.emitter = e }
}

// WithLogger wires a logger handed to backends for their own warnings.
func WithLogger(l events.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithPolicy overrides the expiry policy derived from settings.
func WithPolicy(p Policy) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// WithBackend presets the backend, bypassing lazy construction from
// settings. Intended for injected test doubles and externally owned
// backends.
func WithBackend(b Backend) ManagerOption {
	return func(m *Manager) { m.backend = b }
}

// NewManager creates a manager over cfg. The backend is not constructed
// until the first operation needs it.
func NewManager(cfg config.Settings, opts ...ManagerOption) *Manager {
	m := &Manager{
		settings: cfg,
		log:      events.NopLogger{},
		policy:   Policy{DefaultTTL: cfg.TTL},
	}
	if cfg.Breaker.Enabled {
		m.breaker = NewBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Settings returns the settings the manager was built from.
func (m *Manager) Settings() config.Settings { return m.settings }

// Emitter returns the wired emitter, possibly nil.
func (m *Manager) Emitter() *events.Emitter { return m.emitter }

// Policy returns the active expiry policy.
func (m *Manager) Policy() Policy { return m.policy }

// backendName names the backend for events, before or after construction.
func (m *Manager) backendName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend != nil {
		return m.backend.Name()
	}
	return string(m.settings.Backend)
}

// ensureBackend constructs the backend on first use. A construction
// failure is reported and returned; it is not cached, so a later call
// retries.
func (m *Manager) ensureBackend(ctx context.Context) (Backend, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.backend != nil {
		b := m.backend
		m.mu.Unlock()
		return b, nil
	}

	b, err := NewBackend(ctx, m.settings, m.log)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.backend = b
	m.mu.Unlock()

	m.emitter.Emit(events.Event{Type: events.TypeBackendInit, Backend: b.Name()})
	return b, nil
}

// guard routes one backend operation through the circuit breaker when one
// is configured.
func (m *Manager) guard(op func() error) error {
	if m.breaker == nil {
		return op()
	}
	return m.breaker.Do(op)
}

func (m *Manager) emitError(key, function, op string, err error) {
	m.emitter.Emit(events.Event{
		Type:     events.TypeError,
		Key:      key,
		Function: function,
		Backend:  m.backendName(),
		Op:       op,
		Err:      err,
		ErrKind:  errKind(err),
	})
}

// Get retrieves a value, emitting a hit or miss event. Backend failures
// are reported and degrade to a miss. The returned error is non-nil only
// when the backend could not be constructed; that failure is fatal to the
// call.
func (m *Manager) Get(ctx context.Context, key, function string) ([]byte, bool, error) {
	b, err := m.ensureBackend(ctx)
	if err != nil {
		m.emitError(key, function, "get", err)
		return nil, false, err
	}

	var value []byte
	var ok bool
	err = m.guard(func() error {
		var opErr error
		value, ok, opErr = b.Get(ctx, key)
		return opErr
	})
	if err != nil {
		m.emitError(key, function, "get", err)
		return nil, false, nil
	}

	t := events.TypeMiss
	if ok {
		t = events.TypeHit
	}
	m.emitter.Emit(events.Event{Type: t, Key: key, Function: function, Backend: b.Name()})
	return value, ok, nil
}

// Set stores a value with the policy-resolved TTL and emits a set event.
// Backend failures are reported and swallowed. The returned error is
// non-nil only when the backend could not be constructed.
func (m *Manager) Set(ctx context.Context, key string, value []byte, function string, ttl time.Duration) error {
	b, err := m.ensureBackend(ctx)
	if err != nil {
		m.emitError(key, function, "set", err)
		return err
	}

	effective := m.policy.EffectiveTTL(ttl)
	err = m.guard(func() error { return b.Set(ctx, key, value, effective) })
	if err != nil {
		m.emitError(key, function, "set", err)
		return nil
	}

	m.emitter.Emit(events.Event{
		Type:     events.TypeSet,
		Key:      key,
		Function: function,
		Backend:  b.Name(),
		TTL:      effective,
	})
	return nil
}

// Delete removes a value and emits a delete event. Backend failures are
// reported and swallowed.
func (m *Manager) Delete(ctx context.Context, key string) error {
	b, err := m.ensureBackend(ctx)
	if err != nil {
		m.emitError(key, "", "delete", err)
		return err
	}

	if err := m.guard(func() error { return b.Delete(ctx, key) }); err != nil {
		m.emitError(key, "", "delete", err)
		return nil
	}
	m.emitter.Emit(events.Event{Type: events.TypeDelete, Key: key, Backend: b.Name()})
	return nil
}

// Clear removes every value and emits a clear event. Backend failures are
// reported and swallowed.
func (m *Manager) Clear(ctx context.Context) error {
	b, err := m.ensureBackend(ctx)
	if err != nil {
		m.emitError("", "", "clear", err)
		return err
	}

	if err := m.guard(func() error { return b.Clear(ctx) }); err != nil {
		m.emitError("", "", "clear", err)
		return nil
	}
	m.emitter.Emit(events.Event{Type: events.TypeClear, Backend: b.Name()})
	return nil
}

// CleanupExpired sweeps expired entries on backends that support it and
// reports the number removed. Backends without a sweep return (0, nil).
// Intended for external periodic scheduling.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	b, err := m.ensureBackend(ctx)
	if err != nil {
		return 0, err
	}
	mt, ok := b.(Maintainer)
	if !ok {
		return 0, nil
	}
	n, err := mt.CleanupExpired(ctx)
	if err != nil {
		m.emitError("", "", "cleanup", err)
	}
	return n, err
}

// Close shuts the backend down, if one was constructed. Subsequent
// operations fail with ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	b := m.backend
	m.backend = nil
	m.closed = true
	m.mu.Unlock()

	if b == nil {
		return nil
	}
	err := b.Close(ctx)
	m.emitter.Emit(events.Event{Type: events.TypeBackendClose, Backend: b.Name()})
	return err
}
