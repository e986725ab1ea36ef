package events

import (
	"sync"
	"time"
)

// Type identifies a kind of cache notification.
type Type string

// Cache operation events.
const (
	TypeHit    Type = "cache_hit"
	TypeMiss   Type = "cache_miss"
	TypeSet    Type = "cache_set"
	TypeDelete Type = "cache_delete"
	TypeClear  Type = "cache_clear"
	TypeError  Type = "cache_error"
)

// Wrapped-call lifecycle events.
const (
	TypeCallStart Type = "call_start"
	TypeCallEnd   Type = "call_end"
	TypeCallError Type = "call_error"
)

// Backend lifecycle events.
const (
	TypeBackendInit  Type = "backend_init"
	TypeBackendClose Type = "backend_close"
)

// Types lists every event type, in a stable order.
var Types = []Type{
	TypeHit, TypeMiss, TypeSet, TypeDelete, TypeClear, TypeError,
	TypeCallStart, TypeCallEnd, TypeCallError,
	TypeBackendInit, TypeBackendClose,
}

// Event is a single notification. Key, Function, and Backend are set where
// they apply; Op and Err only accompany TypeError and TypeCallError.
type Event struct {
	Type      Type
	Key       string
	Function  string
	Backend   string
	Timestamp time.Time

	// TTL accompanies TypeSet.
	TTL time.Duration

	// Duration accompanies TypeCallEnd.
	Duration time.Duration

	// Op names the failing cache operation on TypeError.
	Op string

	// Err carries the failure on TypeError and TypeCallError.
	Err error

	// ErrKind classifies Err (storage, config, computation, ...).
	ErrKind string
}

// Handler receives one event. Handlers must not block for longer than
// they are willing to delay the cache operation that emitted the event.
type Handler func(Event)

// Emitter fans events out to subscribed handlers.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: handler panics are recovered; emission never fails.
type Emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[Type]map[int]Handler
	defaults map[Type][]Handler
	disabled bool
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[Type]map[int]Handler),
		defaults: make(map[Type][]Handler),
	}
}

// Subscribe registers a handler for one event type and returns a function
// that removes it.
func (e *Emitter) Subscribe(t Type, h Handler) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	if e.handlers[t] == nil {
		e.handlers[t] = make(map[int]Handler)
	}
	e.handlers[t][id] = h

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[t], id)
	}
}

// SubscribeAll registers a handler for every event type and returns a
// function that removes all of the registrations.
func (e *Emitter) SubscribeAll(h Handler) (cancel func()) {
	cancels := make([]func(), 0, len(Types))
	for _, t := range Types {
		cancels = append(cancels, e.Subscribe(t, h))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// AddDefault registers a handler that is always invoked for t, even after
// Reset. Default handlers cannot be unsubscribed.
func (e *Emitter) AddDefault(t Type, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaults[t] = append(e.defaults[t], h)
}

// Reset removes all subscribed handlers. Default handlers remain.
func (e *Emitter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = make(map[Type]map[int]Handler)
}

// Disable suppresses emission until Enable is called.
func (e *Emitter) Disable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disabled = true
}

// Enable resumes emission.
func (e *Emitter) Enable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disabled = false
}

// Enabled reports whether emission is active.
func (e *Emitter) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.disabled
}

// Emit delivers ev to every default and subscribed handler for its type.
// A zero Timestamp is filled in with the current time. Emit on a nil
// emitter is a no-op.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}

	e.mu.RLock()
	if e.disabled {
		e.mu.RUnlock()
		return
	}
	hs := make([]Handler, 0, len(e.defaults[ev.Type])+len(e.handlers[ev.Type]))
	hs = append(hs, e.defaults[ev.Type]...)
	for _, h := range e.handlers[ev.Type] {
		hs = append(hs, h)
	}
	e.mu.RUnlock()

	if len(hs) == 0 {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, h := range hs {
		call(h, ev)
	}
}

func call(h Handler, ev Event) {
	defer func() {
		// A misbehaving subscriber must not take down the cache path.
		_ = recover()
	}()
	h(ev)
}
