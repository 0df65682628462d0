// Package cache holds the last known value of every setting the console has
// read or written.
package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// Key identifies a cache entry. Profile is empty for unprofiled settings.
type Key struct {
	Setting string
	Profile string
}

// Entry is the cached state of one setting.
type Entry struct {
	Value      json.RawMessage
	IsDefault  bool
	ModifyTime time.Time
	ModifyUser string
}

// Modified reports whether the entry differs from the template default.
func (e Entry) Modified() bool {
	return !e.IsDefault
}

// Cache is a process-wide map of setting entries. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]Entry)}
}

// Get returns a copy of the entry for k.
func (c *Cache) Get(k Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	if !ok {
		return Entry{}, false
	}
	e.Value = cloneRaw(e.Value)
	return e, true
}

// Put replaces the entry for k.
func (c *Cache) Put(k Key, e Entry) {
	e.Value = cloneRaw(e.Value)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = e
}

// SetDefault updates only the default flag of an existing entry. It reports
// whether the entry existed.
func (c *Cache) SetDefault(k Key, isDefault bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		return false
	}
	e.IsDefault = isDefault
	c.entries[k] = e
	return true
}

// Delete removes the entry for k.
func (c *Cache) Delete(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]Entry)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ModifiedKeys returns the keys of entries that are not default for profile.
func (c *Cache) ModifiedKeys(profile string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for k, e := range c.entries {
		if k.Profile == profile && !e.IsDefault {
			out = append(out, k.Setting)
		}
	}
	return out
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
