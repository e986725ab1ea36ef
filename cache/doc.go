// Package cache memoizes function results against keys derived from the
// call's arguments.
//
// It provides a Backend interface over keyed, optionally-expiring entries,
// with in-memory (bounded, LRU-evicting), on-disk (durable, atomic-write),
// memcached, and S3 implementations; deterministic SHA-256 key derivation;
// a Manager that orchestrates one lazily-constructed backend and emits
// structured events; and a generic Func wrapper that serves repeated calls
// from the cache, uniformly for immediate and deferred work.
package cache
