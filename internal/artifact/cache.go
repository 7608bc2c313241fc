package artifact

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cachesync/internal/persister"
)

// ErrEmptyKey is returned when a mutation names an empty key.
var ErrEmptyKey = errors.New("artifact: empty key")

// Contents is a point-in-time copy of a Cache.
type Contents struct {
	Version int64
	Entries map[string]string
}

// Cache is an in-memory key/value artifact.
//
// Thread-safety: safe for concurrent use. The persister is touched after the
// cache lock is released.
type Cache struct {
	name string

	mu      sync.RWMutex
	entries map[string]string
	version int64
	cell    *persister.Cell
}

// NewCache creates an empty cache with the given artifact name.
func NewCache(name string) *Cache {
	return &Cache{
		name:    name,
		entries: make(map[string]string),
	}
}

// Name returns the artifact name used in the snapshot log.
func (c *Cache) Name() string {
	return c.name
}

// Attach sets the cell touched by every mutation.
func (c *Cache) Attach(cell *persister.Cell) {
	c.mu.Lock()
	c.cell = cell
	c.mu.Unlock()
}

// Cell returns the attached cell, or nil.
func (c *Cache) Cell() *persister.Cell {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cell
}

// Get returns the value stored under key.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[norm.NFC.String(key)]
	return v, ok
}

// Set stores value under key and touches the persister.
// The returned error comes from the touch; the value is stored regardless.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	key = norm.NFC.String(key)
	if key == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	c.entries[key] = value
	c.version++
	cell := c.cell
	c.mu.Unlock()

	return touch(ctx, cell)
}

// Delete removes key. Deleting a missing key is not a mutation and does not
// touch the persister.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	key = norm.NFC.String(key)
	if key == "" {
		return false, ErrEmptyKey
	}

	c.mu.Lock()
	if _, ok := c.entries[key]; !ok {
		c.mu.Unlock()
		return false, nil
	}
	delete(c.entries, key)
	c.version++
	cell := c.cell
	c.mu.Unlock()

	return true, touch(ctx, cell)
}

func touch(ctx context.Context, cell *persister.Cell) error {
	if cell == nil {
		return nil
	}
	return cell.Touch(ctx)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Version returns the mutation counter. It increases by one per Set or
// successful Delete and is restored from the snapshot log.
func (c *Cache) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Keys returns all keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Contents returns a copy of the entries and the version they belong to.
func (c *Cache) Contents() Contents {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries := make(map[string]string, len(c.entries))
	for k, v := range c.entries {
		entries[k] = v
	}
	return Contents{Version: c.version, Entries: entries}
}

// Load replaces the cache contents without touching the persister.
func (c *Cache) Load(contents Contents) {
	entries := make(map[string]string, len(contents.Entries))
	for k, v := range contents.Entries {
		entries[norm.NFC.String(k)] = v
	}

	c.mu.Lock()
	c.entries = entries
	c.version = contents.Version
	c.mu.Unlock()
}
