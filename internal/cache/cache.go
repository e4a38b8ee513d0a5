// Package cache provides time-bounded storage for remote version metadata
// and parsed changelog entries.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/store"
)

// Clock supplies the current time. Tests inject a fixed clock to drive expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Cache stores opaque values for a bounded time. A failed read is reported
// as a miss; callers fall back to fetching.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
}

// Memory is an in-process Cache, used by the HTTP server and tests.
type Memory struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache. A nil clock uses the system clock.
func NewMemory(clock Clock) *Memory {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Memory{
		clock:   clock,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the value for key if present and unexpired.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl.
func (m *Memory) Set(key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}

// Delete removes key.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// StoreCache persists entries in the sqlite store so cached values survive
// between CLI invocations.
type StoreCache struct {
	store *store.Store
	clock Clock
}

// NewStoreCache creates a Cache backed by the cache_entries table.
func NewStoreCache(st *store.Store, clock Clock) *StoreCache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &StoreCache{store: st, clock: clock}
}

// Get returns the value for key if present and unexpired.
func (c *StoreCache) Get(key string) ([]byte, bool) {
	entry, err := c.store.GetCacheEntry(key)
	if err != nil || entry == nil {
		return nil, false
	}
	if !c.clock.Now().Before(entry.ExpiresAt) {
		_ = c.store.DeleteCacheEntry(key)
		return nil, false
	}
	return entry.Value, true
}

// Set stores value under key for ttl.
func (c *StoreCache) Set(key string, value []byte, ttl time.Duration) error {
	return c.store.PutCacheEntry(&store.CacheEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: c.clock.Now().Add(ttl),
	})
}

// Delete removes key.
func (c *StoreCache) Delete(key string) error {
	return c.store.DeleteCacheEntry(key)
}

// Purge drops every expired row.
func (c *StoreCache) Purge() (int64, error) {
	return c.store.PurgeExpiredCacheEntries(c.clock.Now())
}

// GetJSON decodes a cached JSON value into v. A value that no longer decodes
// is treated as a miss and dropped.
func GetJSON(c Cache, key string, v any) bool {
	data, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		_ = c.Delete(key)
		return false
	}
	return true
}

// SetJSON encodes v as JSON and stores it under key.
func SetJSON(c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value %s: %w", key, err)
	}
	return c.Set(key, data, ttl)
}
