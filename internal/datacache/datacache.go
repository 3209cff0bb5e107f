// Package datacache shares published series tables across simulation
// tasks. A symbol's table is published exactly once, any number of tasks
// attach to read it, and the batch owner releases everything when the
// batch ends. Tables are immutable, so attached readers never copy.
package datacache

import (
	"sort"
	"sync"

	bterrors "backsim/internal/errors"
	"backsim/internal/series"
)

// Cache is a concurrency-safe publish-once table registry.
type Cache struct {
	mu       sync.RWMutex
	tables   map[string]*series.Table
	attaches map[string]int
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		tables:   make(map[string]*series.Table),
		attaches: make(map[string]int),
	}
}

// Handle identifies one published table. The publisher hands it to the
// tasks that should attach.
type Handle struct {
	symbol string
}

// Symbol returns the symbol the handle refers to.
func (h Handle) Symbol() string { return h.symbol }

// Publish registers a table under its symbol and returns the attach
// handle. Publishing a symbol twice is an error; the batch owner
// publishes before any task attaches.
func (c *Cache) Publish(table *series.Table) (Handle, error) {
	if table == nil || table.Len() == 0 {
		return Handle{}, bterrors.NewValidationError("table", nil, "cannot publish an empty table")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	symbol := table.Symbol()
	if _, ok := c.tables[symbol]; ok {
		return Handle{}, bterrors.Wrapf(bterrors.ErrAlreadyPublished, "symbol %s", symbol)
	}
	c.tables[symbol] = table
	return Handle{symbol: symbol}, nil
}

// Attach returns the published table behind the handle and counts the
// attachment.
func (c *Cache) Attach(h Handle) (*series.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, ok := c.tables[h.symbol]
	if !ok {
		return nil, bterrors.Wrapf(bterrors.ErrNotPublished, "symbol %s", h.symbol)
	}
	c.attaches[h.symbol]++
	return table, nil
}

// Get attaches by symbol, for callers holding no handle.
func (c *Cache) Get(symbol string) (*series.Table, error) {
	return c.Attach(Handle{symbol: symbol})
}

// Attachments returns how many times the symbol has been attached.
func (c *Cache) Attachments(symbol string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attaches[symbol]
}

// Len returns the number of published symbols.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables)
}

// Symbols returns the published symbols, sorted.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbols := make([]string, 0, len(c.tables))
	for symbol := range c.tables {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// ReleaseAll drops every published table and attachment count, and
// returns how many tables were released. The cache is empty and
// publishable again afterwards.
func (c *Cache) ReleaseAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	released := len(c.tables)
	c.tables = make(map[string]*series.Table)
	c.attaches = make(map[string]int)
	return released
}
