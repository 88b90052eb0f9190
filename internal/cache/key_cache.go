package cache

import (
	"context"
	"sync"
	"time"
)

// KeyCache caches public keys published by the identity service, keyed
// by "<role>:<platformId>".
type KeyCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

type entry struct {
	value   []byte
	expires time.Time
}

// MemoryKeyCache is a process-local KeyCache with a fixed TTL.
type MemoryKeyCache struct {
	mu    sync.RWMutex
	store map[string]entry
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryKeyCache(ttl time.Duration) *MemoryKeyCache {
	return &MemoryKeyCache{
		store: make(map[string]entry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *MemoryKeyCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && !c.now().Before(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (c *MemoryKeyCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = entry{value: value, expires: c.now().Add(c.ttl)}
}
