// Package dedupe remembers recently stored article IDs so redelivered
// Kafka messages and repeated feed items are written once.
package dedupe

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded, ttl-limited set of article IDs. Least recently marked entries are evicted first.
type Cache struct {
	lru *expirable.LRU[string, struct{}]
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{lru: expirable.NewLRU[string, struct{}](capacity, nil, ttl)}
}

// Seen reports whether key was marked within the ttl window. It does not mark the key.
func (c *Cache) Seen(key string) bool {
	_, ok := c.lru.Peek(key)
	return ok
}

// Mark records key as stored, refreshing its ttl and position when already present.
func (c *Cache) Mark(key string) {
	c.lru.Add(key, struct{}{})
}

// Len returns the number of remembered keys.
func (c *Cache) Len() int {
	return c.lru.Len()
}
