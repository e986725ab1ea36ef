// Package events carries structured notifications out of the cache:
// hits, misses, mutations, errors, and wrapped-call lifecycle.
//
// It provides an Emitter with per-type subscriptions and default handlers,
// a JSON structured logger, and an OpenTelemetry metrics subscriber.
// Handlers run synchronously on the emitting goroutine; a handler panic is
// recovered and never reaches the cache path.
package events
