package cache

import (
	"context"
	"time"
)

// Noop is the cache-disabled deployment: every read misses, every write is dropped.
type Noop struct{}

func (Noop) Get(context.Context, string, string) ([]byte, bool, error) { return nil, false, nil }

func (Noop) Set(context.Context, string, string, []byte, time.Duration) error { return nil }

func (Noop) Delete(context.Context, string, string) error { return nil }
