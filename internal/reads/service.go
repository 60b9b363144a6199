// Package reads is the read-through cache path for single orders and order lists.
package reads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/imrishuroy/pizza-tracker/internal/cache"
	"github.com/imrishuroy/pizza-tracker/internal/orders"
	"github.com/imrishuroy/pizza-tracker/internal/telemetry"
)

// OrderSource is the primary store as seen by the read path. *orders.Store implements it.
type OrderSource interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	GetMetadata(ctx context.Context, orderID string) (*orders.MetadataRecord, error)
	ListActive(ctx context.Context) ([]orders.Order, error)
	ListByCreator(ctx context.Context, creator string) ([]orders.Order, error)
}

// Config selects the deployment flavour of the read path.
type Config struct {
	TTL time.Duration
	// RestrictToCreator serves the customer projection and rejects non-creators.
	// When false the admin projection (with creator) is served to everyone.
	RestrictToCreator bool
}

// Service answers reads from the cache, falling back to the store on a miss
// and writing the result back.
type Service struct {
	cache cache.Cache
	store OrderSource
	rec   telemetry.Recorder
	log   *zap.Logger
	cfg   Config

	// collapses concurrent misses for the same key within this process
	group singleflight.Group
}

func NewService(store OrderSource, c cache.Cache, rec telemetry.Recorder, log *zap.Logger, cfg Config) *Service {
	return &Service{
		cache: c,
		store: store,
		rec:   rec,
		log:   log,
		cfg:   cfg,
	}
}

type fetchedOrder struct {
	creator string
	body    []byte
}

// GetOrder returns the JSON projection of one order. Cache hits are returned verbatim.
func (s *Service) GetOrder(ctx context.Context, orderID, caller string) ([]byte, error) {
	totalStart := time.Now()
	defer telemetry.Since(s.rec, "get-order-latency-total", totalStart)

	key := cache.AdminOrderKey(orderID)
	if s.cfg.RestrictToCreator {
		key = cache.OrderKey(orderID)
	}

	cacheStart := time.Now()
	if raw, ok := s.probe(ctx, key); ok {
		telemetry.Since(s.rec, "get-order-latency-cache", cacheStart)
		s.rec.Count("get-order-cache-hit", 1)
		if s.cfg.RestrictToCreator {
			if err := s.authorizeCached(ctx, orderID, caller); err != nil {
				return nil, err
			}
		}
		return raw, nil
	}

	dbStart := time.Now()
	v, err, _ := s.group.Do("order:"+key, func() (interface{}, error) {
		o, err := s.store.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, orders.ErrNotFound
		}

		view := orders.AdminView(*o)
		if s.cfg.RestrictToCreator {
			view = orders.CustomerView(*o)
		}
		body, err := json.Marshal(view)
		if err != nil {
			return nil, fmt.Errorf("encode order: %w", err)
		}
		s.writeBack(ctx, key, body)
		return fetchedOrder{creator: o.Creator, body: body}, nil
	})
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	telemetry.Since(s.rec, "get-order-latency-ddb", dbStart)
	s.rec.Count("get-order-cache-miss", 1)

	f := v.(fetchedOrder)
	if s.cfg.RestrictToCreator && f.creator != caller {
		return nil, orders.ErrForbidden
	}
	return f.body, nil
}

// ListActive returns every non-completed order, newest first.
func (s *Service) ListActive(ctx context.Context) ([]byte, error) {
	return s.list(ctx, "get-all-orders", cache.AllOrdersKey, s.store.ListActive)
}

// ListByCreator returns every order created by creator, newest first.
func (s *Service) ListByCreator(ctx context.Context, creator string) ([]byte, error) {
	return s.list(ctx, "get-my-orders", cache.CreatorKey(creator), func(ctx context.Context) ([]orders.Order, error) {
		return s.store.ListByCreator(ctx, creator)
	})
}

func (s *Service) list(ctx context.Context, metric, key string, load func(context.Context) ([]orders.Order, error)) ([]byte, error) {
	start := time.Now()
	defer telemetry.Since(s.rec, metric+"-latency", start)

	if raw, ok := s.probe(ctx, key); ok {
		s.rec.Count(metric+"-cache-hit", 1)
		return raw, nil
	}

	v, err, _ := s.group.Do("list:"+key, func() (interface{}, error) {
		list, err := load(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]orders.Summary, 0, len(list))
		for _, o := range list {
			rows = append(rows, orders.SummaryOf(o))
		}
		orders.SortSummaries(rows)

		body, err := json.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("encode orders: %w", err)
		}
		s.writeBack(ctx, key, body)
		return body, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	s.rec.Count(metric+"-cache-miss", 1)
	return v.([]byte), nil
}

// probe reads the cache; an error counts as a miss.
func (s *Service) probe(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := s.cache.Get(ctx, cache.Namespace, key)
	if err != nil {
		s.log.Warn("cache get failed, reading from store", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return raw, ok
}

func (s *Service) writeBack(ctx context.Context, key string, body []byte) {
	if err := s.cache.Set(ctx, cache.Namespace, key, body, s.cfg.TTL); err != nil {
		s.log.Warn("cache write-back failed", zap.String("key", key), zap.Error(err))
	}
}

// authorizeCached checks ownership for a customer-key hit, which carries no creator.
// The admin entry answers when cached; otherwise the store metadata does.
func (s *Service) authorizeCached(ctx context.Context, orderID, caller string) error {
	var admin orders.View
	ok, err := cache.GetJSON(ctx, s.cache, cache.AdminOrderKey(orderID), &admin)
	if err == nil && ok && admin.Creator != "" {
		if admin.Creator != caller {
			return orders.ErrForbidden
		}
		return nil
	}

	meta, err := s.store.GetMetadata(ctx, orderID)
	if err != nil {
		return fmt.Errorf("authorize order: %w", err)
	}
	if meta == nil {
		return orders.ErrNotFound
	}
	if meta.Creator != caller {
		return orders.ErrForbidden
	}
	return nil
}
