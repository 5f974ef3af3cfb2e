package cddt

import "sync"

// DDTCache memoizes reconstructed tables by slice index. Reconstruction is
// deterministic, so each slice is built at most once per cache. Degenerate
// slices are remembered as such and keep returning ErrDegenerateSlice.
type DDTCache struct {
	mu      sync.RWMutex
	table   *Table
	opts    ReconstructOptions
	entries map[int]cacheEntry
}

type cacheEntry struct {
	ddt *DDT
	err error
}

// NewDDTCache creates an empty cache over table
func NewDDTCache(table *Table, opts ReconstructOptions) *DDTCache {
	return &DDTCache{
		table:   table,
		opts:    opts,
		entries: make(map[int]cacheEntry),
	}
}

// Options returns the reconstruction options used for every entry
func (c *DDTCache) Options() ReconstructOptions {
	return c.opts
}

// Get returns the table for slice i, wrapping i cyclically
func (c *DDTCache) Get(i int) (*DDT, error) {
	idx := c.table.WrapIndex(i)

	c.mu.RLock()
	e, ok := c.entries[idx]
	c.mu.RUnlock()
	if ok {
		return e.ddt, e.err
	}

	ddt, err := c.table.Slices[idx].ReconstructWith(c.opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another caller may have filled the entry meanwhile; keep the first.
	if e, ok := c.entries[idx]; ok {
		return e.ddt, e.err
	}
	c.entries[idx] = cacheEntry{ddt: ddt, err: err}
	return ddt, err
}

// Len returns the number of cached entries
func (c *DDTCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every cached entry
func (c *DDTCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]cacheEntry)
}
