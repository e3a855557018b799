// Package cache provides injectable, TTL-bearing cache state objects.
//
// Each TTL instance is independent, so several registries or services can
// coexist in one process (and in tests) without sharing entries. Entries for
// a key are idempotent: concurrent fills race benignly and the last write wins.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultSize is the entry bound used when a non-positive size is given.
const DefaultSize = 256

// TTL is a size-bounded cache whose entries expire after a fixed duration.
type TTL[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
	ttl time.Duration
}

// NewTTL creates a cache holding at most size entries for ttl each.
func NewTTL[K comparable, V any](size int, ttl time.Duration) *TTL[K, V] {
	if size <= 0 {
		size = DefaultSize
	}
	return &TTL[K, V]{
		lru: expirable.NewLRU[K, V](size, nil, ttl),
		ttl: ttl,
	}
}

// Get returns the cached value for key if present and not expired.
// A nil cache always misses.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	return c.lru.Get(key)
}

// Set stores value under key, replacing any previous entry.
func (c *TTL[K, V]) Set(key K, value V) {
	if c == nil {
		return
	}
	c.lru.Add(key, value)
}

// Delete removes key.
func (c *TTL[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *TTL[K, V]) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *TTL[K, V]) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// TTL returns the configured expiry.
func (c *TTL[K, V]) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}
