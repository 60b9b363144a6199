// Package cache is the best-effort acceleration layer in front of the orders table.
// Every operation may fail; callers treat a failed Get as a miss and never let a
// failed Set or Delete fail the request.
package cache

import (
	"context"
	"time"
)

// Namespace holds every pizza-tracker entry.
const Namespace = "pizza"

// AllOrdersKey holds the list of every non-completed order.
const AllOrdersKey = "all-orders"

const adminPrefix = "ADMIN-"

// Cache is a key-value store with per-key TTL addressed by (namespace, key).
// Get reports a hit with ok=true, a miss with ok=false and a nil error.
type Cache interface {
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
}

// OrderKey is the customer projection of an order.
func OrderKey(orderID string) string { return orderID }

// AdminOrderKey is the admin projection of an order, which carries the creator.
func AdminOrderKey(orderID string) string { return adminPrefix + orderID }

// CreatorKey is the list of orders created by one identity.
func CreatorKey(creator string) string { return creator }
