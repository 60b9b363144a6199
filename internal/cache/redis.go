package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores entries under "<namespace>:<key>".
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// RedisFromURL returns a factory for Lazy that resolves the URL and dials on first use.
func RedisFromURL(resolve func(ctx context.Context) (string, error)) func(ctx context.Context) (Cache, error) {
	return func(ctx context.Context) (Cache, error) {
		url, err := resolve(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve redis url: %w", err)
		}
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return NewRedis(redis.NewClient(opts)), nil
	}
}

func redisKey(namespace, key string) string {
	return namespace + ":" + key
}

func (r *Redis) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, redisKey(namespace, key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, namespace, key string) error {
	return r.client.Del(ctx, redisKey(namespace, key)).Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
