package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Lazy builds the real cache on first use and reuses it for the life of the process.
// Concurrent first calls build it once. A failed build is retried on the next call.
type Lazy struct {
	mu      sync.Mutex
	cache   Cache
	factory func(ctx context.Context) (Cache, error)
}

func NewLazy(factory func(ctx context.Context) (Cache, error)) *Lazy {
	return &Lazy{factory: factory}
}

func (l *Lazy) get(ctx context.Context) (Cache, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache != nil {
		return l.cache, nil
	}
	c, err := l.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	l.cache = c
	return c, nil
}

func (l *Lazy) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	c, err := l.get(ctx)
	if err != nil {
		return nil, false, err
	}
	return c.Get(ctx, namespace, key)
}

func (l *Lazy) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	c, err := l.get(ctx)
	if err != nil {
		return err
	}
	return c.Set(ctx, namespace, key, value, ttl)
}

func (l *Lazy) Delete(ctx context.Context, namespace, key string) error {
	c, err := l.get(ctx)
	if err != nil {
		return err
	}
	return c.Delete(ctx, namespace, key)
}
