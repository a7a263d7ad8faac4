package rules

import (
	"context"
	"sync"

	"github.com/KanavDutta/signalfence/store"
)

// Cache is a per-request read-through view of the store. The engine fills it with one
// batched read; rules read through it and record their own writes so later rules see them.
type Cache struct {
	mu     sync.Mutex
	kv     store.KV
	values map[string]*string
}

// NewCache creates an empty cache over kv.
func NewCache(kv store.KV) *Cache {
	return &Cache{kv: kv, values: make(map[string]*string)}
}

// Prefetch loads keys with a single MGet.
func (c *Cache) Prefetch(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	vals := c.kv.MGet(ctx, keys...)
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, k := range keys {
		if i < len(vals) {
			c.values[k] = vals[i]
		} else {
			c.values[k] = nil
		}
	}
}

// Get returns the cached value, reading through to the store on a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.Lock()
	v, cached := c.values[key]
	c.mu.Unlock()
	if cached {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	val, ok := c.kv.Get(ctx, key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.values[key] = &val
	} else {
		c.values[key] = nil
	}
	return val, ok
}

// Put records a value written during this request.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = &value
}

// Forget records that key was deleted during this request.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = nil
}
