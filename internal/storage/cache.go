// cache.go - In-memory cache for raw model responses

package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value    V
	storedAt time.Time
}

// ResultCache stores values for a fixed TTL. A zero TTL disables it.
type ResultCache[V any] struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]cacheEntry[V]
	now     func() time.Time
}

// NewResultCache creates a cache whose entries expire after ttl.
func NewResultCache[V any](ttl time.Duration) *ResultCache[V] {
	return &ResultCache[V]{
		ttl:     ttl,
		entries: make(map[string]cacheEntry[V]),
		now:     time.Now,
	}
}

// Enabled reports whether the cache stores anything.
func (c *ResultCache[V]) Enabled() bool {
	return c != nil && c.ttl > 0
}

// Get returns the cached value for key if it has not expired.
func (c *ResultCache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil || c.ttl <= 0 {
		return zero, false
	}

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()
	if exists && c.now().Sub(entry.storedAt) < c.ttl {
		return entry.value, true
	}
	if !exists {
		return zero, false
	}

	// Expired - remove under the write lock unless it was refreshed meanwhile
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists = c.entries[key]
	if exists && c.now().Sub(entry.storedAt) < c.ttl {
		return entry.value, true
	}
	delete(c.entries, key)
	return zero, false
}

// Put stores value under key and drops any expired entries.
func (c *ResultCache[V]) Put(key string, value V) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry[V]{value: value, storedAt: now}
}

// Len returns the number of stored entries, expired or not.
func (c *ResultCache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CacheKey identifies a scan by document content, client and provider preference.
func CacheKey(documentHash, clientName, preference string) string {
	return fmt.Sprintf("%s|%s|%s", documentHash, clientName, preference)
}

// HashFile returns the hex sha256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
