package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/retain/events"
)

// Work is one unit of cacheable work. It has exactly two variants:
// Immediate, which computes on the calling goroutine, and Deferred, which
// resolves a Future. The bridge treats both uniformly; a caller cannot
// observe which variant backs a Func.
type Work[T any] interface {
	Do(ctx context.Context, args []any) (T, error)
}

// Immediate is work that computes synchronously on the calling goroutine.
type Immediate[T any] func(ctx context.Context, args ...any) (T, error)

func (f Immediate[T]) Do(ctx context.Context, args []any) (T, error) {
	return f(ctx, args...)
}

// Deferred is work that hands back a Future. The bridge suspends on the
// future and resumes with its result.
type Deferred[T any] func(ctx context.Context, args ...any) *Future[T]

func (f Deferred[T]) Do(ctx context.Context, args []any) (T, error) {
	return f(ctx, args...).Wait(ctx)
}

// Future is a deferred result. It resolves exactly once; Wait may be
// called any number of times from any goroutine.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// NewFuture creates an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve completes the future. Later calls are no-ops.
func (f *Future[T]) Resolve(val T, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the future resolves or ctx is done. Abandoning the
// wait does not cancel the underlying work.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Go runs fn on a new goroutine and returns its future.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		f.Resolve(fn())
	}()
	return f
}

type funcOptions struct {
	ttl        time.Duration
	prefix     string
	paramNames []string
	exclude    []string
	keyer      Keyer
}

// FuncOption customizes a wrapped function.
type FuncOption func(*funcOptions)

// WithTTL overrides the manager's default TTL for this function.
func WithTTL(ttl time.Duration) FuncOption {
	return func(o *funcOptions) { o.ttl = ttl }
}

// WithNoExpiry stores this function's results without expiry.
func WithNoExpiry() FuncOption {
	return func(o *funcOptions) { o.ttl = NoExpiry }
}

// WithKeyPrefix overrides the key prefix for this function.
func WithKeyPrefix(prefix string) FuncOption {
	return func(o *funcOptions) { o.prefix = prefix }
}

// WithParamNames declares the function's parameter names in order, so
// WithExclude can match positionally passed values.
func WithParamNames(names ...string) FuncOption {
	return func(o *funcOptions) { o.paramNames = names }
}

// WithExclude drops the named parameters from key derivation, whether
// they arrive positionally or by name.
func WithExclude(names ...string) FuncOption {
	return func(o *funcOptions) { o.exclude = names }
}

// WithKeyer replaces key derivation entirely.
func WithKeyer(k Keyer) FuncOption {
	return func(o *funcOptions) { o.keyer = k }
}

// Func serves one function's calls through the cache. On a hit the work
// never runs; on a miss the work runs once and its result is stored.
// Concurrent calls with the same key share a single execution.
//
// For a given invocation, the call-start event, the call-end event, and
// the cache set happen in that order, and the backend's per-key lock
// keeps any other operation on the same key from observing a partial
// mutation in between.
type Func[T any] struct {
	manager  *Manager
	identity string
	work     Work[T]
	keyer    Keyer
	ttl      time.Duration
	group    singleflight.Group
}

// NewFunc wraps a unit of work under a stable identity. The identity
// participates in key derivation and names the function in events.
func NewFunc[T any](m *Manager, identity string, work Work[T], opts ...FuncOption) (*Func[T], error) {
	if m == nil {
		return nil, ErrNilManager
	}
	if identity == "" {
		return nil, errors.New("cache: function identity is required")
	}
	if work == nil {
		return nil, errors.New("cache: work is required")
	}

	var o funcOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.keyer == nil {
		prefix := o.prefix
		if prefix == "" {
			prefix = m.Settings().KeyPrefix
		}
		o.keyer = &DefaultKeyer{
			Prefix:     prefix,
			ParamNames: o.paramNames,
			Exclude:    o.exclude,
		}
	}

	return &Func[T]{
		manager:  m,
		identity: identity,
		work:     work,
		keyer:    o.keyer,
		ttl:      o.ttl,
	}, nil
}

// Wrap caches an immediate function.
func Wrap[T any](m *Manager, identity string, fn func(ctx context.Context, args ...any) (T, error), opts ...FuncOption) (*Func[T], error) {
	return NewFunc(m, identity, Immediate[T](fn), opts...)
}

// WrapDeferred caches a deferred function.
func WrapDeferred[T any](m *Manager, identity string, fn func(ctx context.Context, args ...any) *Future[T], opts ...FuncOption) (*Func[T], error) {
	return NewFunc(m, identity, Deferred[T](fn), opts...)
}

// Key derives the cache key for the given positional arguments.
func (f *Func[T]) Key(args ...any) (string, error) {
	return f.keyer.Key(f.identity, args, nil)
}

// KeyNamed derives the cache key for mixed positional and named
// arguments.
func (f *Func[T]) KeyNamed(args []any, named map[string]any) (string, error) {
	return f.keyer.Key(f.identity, args, named)
}

// Call invokes the function through the cache with positional arguments.
func (f *Func[T]) Call(ctx context.Context, args ...any) (T, error) {
	return f.call(ctx, args, nil)
}

// CallNamed invokes the function through the cache with mixed positional
// and named arguments. Named arguments reach key derivation only; the
// work receives the positional arguments.
func (f *Func[T]) CallNamed(ctx context.Context, args []any, named map[string]any) (T, error) {
	return f.call(ctx, args, named)
}

// CallAsync runs the full cached call path on a bridge-owned goroutine
// and returns its future.
func (f *Func[T]) CallAsync(ctx context.Context, args ...any) *Future[T] {
	return Go(func() (T, error) {
		return f.Call(ctx, args...)
	})
}

func (f *Func[T]) call(ctx context.Context, args []any, named map[string]any) (T, error) {
	var zero T

	key, err := f.keyer.Key(f.identity, args, named)
	if err != nil || ValidateKey(key) != nil {
		// Without a usable key the call cannot be cached; the work
		// still runs so the caller gets its result.
		if err != nil {
			f.emitError(key, "key", err)
		}
		return f.work.Do(ctx, args)
	}

	v, err, _ := f.group.Do(key, func() (any, error) {
		return f.compute(ctx, key, args)
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// compute is the miss path: look up, run the work, store.
func (f *Func[T]) compute(ctx context.Context, key string, args []any) (any, error) {
	var zero T

	data, ok, err := f.manager.Get(ctx, key, f.identity)
	if err != nil {
		// The backend could not be constructed. Fatal to this call.
		return zero, err
	}
	if ok {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		// A stored payload this function cannot decode is a miss.
		f.emitError(key, "decode", fmt.Errorf("cache: decoding stored value: %w", err))
	}

	f.emit(events.Event{Type: events.TypeCallStart, Key: key, Function: f.identity, Backend: f.manager.backendName()})
	start := time.Now()

	out, err := f.work.Do(ctx, args)
	if err != nil {
		// The computation's own failure propagates unchanged and
		// nothing is stored.
		f.emit(events.Event{
			Type:     events.TypeCallError,
			Key:      key,
			Function: f.identity,
			Backend:  f.manager.backendName(),
			Err:      err,
			ErrKind:  "computation",
		})
		return zero, err
	}

	f.emit(events.Event{
		Type:     events.TypeCallEnd,
		Key:      key,
		Function: f.identity,
		Backend:  f.manager.backendName(),
		Duration: time.Since(start),
	})

	payload, err := json.Marshal(out)
	if err != nil {
		// The result cannot be stored but still reaches the caller.
		f.emitError(key, "encode", fmt.Errorf("cache: encoding result: %w", err))
		return out, nil
	}
	_ = f.manager.Set(ctx, key, payload, f.identity, f.ttl)
	return out, nil
}

// Forget removes the cached entry for the given arguments.
func (f *Func[T]) Forget(ctx context.Context, args ...any) error {
	key, err := f.Key(args...)
	if err != nil {
		return err
	}
	return f.manager.Delete(ctx, key)
}

// ClearCache removes every entry in the manager's backend, not only this
// function's.
func (f *Func[T]) ClearCache(ctx context.Context) error {
	return f.manager.Clear(ctx)
}

func (f *Func[T]) emit(ev events.Event) {
	f.manager.Emitter().Emit(ev)
}

func (f *Func[T]) emitError(key, op string, err error) {
	f.emit(events.Event{
		Type:     events.TypeError,
		Key:      key,
		Function: f.identity,
		Backend:  f.manager.backendName(),
		Op:       op,
		Err:      err,
		ErrKind:  "codec",
	})
}
