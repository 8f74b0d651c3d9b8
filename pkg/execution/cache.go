package execution

import "sync"

// Cache is the fast-path store mapping execution ID to its live context. A
// suspended execution resumed on the same instance skips the full recovery
// pass. The cache is an optimization, never a source of truth: eviction or
// a cold instance simply falls through to Recover.
type Cache struct {
	mu       sync.RWMutex
	contexts map[string]*Context
}

// NewCache creates an empty context cache.
func NewCache() *Cache {
	return &Cache{
		contexts: make(map[string]*Context),
	}
}

// Get returns the cached context for an execution, if present.
func (c *Cache) Get(executionID string) (*Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ctx, ok := c.contexts[executionID]

	return ctx, ok
}

// Put stores a context under its execution ID.
func (c *Cache) Put(ctx *Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.contexts[ctx.ExecutionID] = ctx
}

// Delete evicts an execution's context.
func (c *Cache) Delete(executionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.contexts, executionID)
}

// Len returns the number of cached contexts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.contexts)
}
