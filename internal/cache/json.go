package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetJSON decodes the entry at key into out. A corrupt entry is reported as an error.
func GetJSON(ctx context.Context, c Cache, key string, out interface{}) (bool, error) {
	raw, ok, err := c.Get(ctx, Namespace, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode cache entry %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	return c.Set(ctx, Namespace, key, payload, ttl)
}
