package reads

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/pizza-tracker/internal/cache"
	"github.com/imrishuroy/pizza-tracker/internal/orders"
	"github.com/imrishuroy/pizza-tracker/internal/telemetry"
)

type fakeSource struct {
	mu        sync.Mutex
	orders    map[string]orders.Order
	getCalls  int
	metaCalls int
	listCalls int
	err       error
}

func newFakeSource(list ...orders.Order) *fakeSource {
	f := &fakeSource{orders: map[string]orders.Order{}}
	for _, o := range list {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeSource) Get(_ context.Context, id string) (*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (f *fakeSource) GetMetadata(_ context.Context, id string) (*orders.MetadataRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaCalls++
	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	return &orders.MetadataRecord{PK: o.ID, SK: orders.SortKeyMetadata, Creator: o.Creator, Status: o.Status}, nil
}

func (f *fakeSource) ListActive(_ context.Context) ([]orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	var out []orders.Order
	for _, o := range f.orders {
		if o.Status != orders.StatusCompleted {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeSource) ListByCreator(_ context.Context, creator string) ([]orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []orders.Order
	for _, o := range f.orders {
		if o.Creator == creator {
			out = append(out, o)
		}
	}
	return out, nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]float64
	timed  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: map[string]float64{}, timed: map[string]int{}}
}

func (r *countingRecorder) Latency(name string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timed[name]++
}

func (r *countingRecorder) Count(name string, n float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += n
}

func (r *countingRecorder) Flush(context.Context) {}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (brokenCache) Set(context.Context, string, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (brokenCache) Delete(context.Context, string, string) error { return nil }

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleOrder(id, creator string, created time.Time, status orders.Status) orders.Order {
	return orders.Order{
		ID:        id,
		CreatedAt: created,
		Status:    status,
		Creator:   creator,
		NumItems:  1,
		Items:     []orders.Pizza{{Size: "large", Crust: "thin", Sauce: "tomato", Toppings: []string{"basil"}}},
	}
}

func TestGetOrder_MissThenHit(t *testing.T) {
	src := newFakeSource(sampleOrder("o1", "1.1.1.1", t0, orders.StatusSubmitted))
	mem := cache.NewMemory(100)
	rec := newCountingRecorder()
	svc := NewService(src, mem, rec, zap.NewNop(), Config{TTL: time.Minute, RestrictToCreator: true})

	first, err := svc.GetOrder(context.Background(), "o1", "1.1.1.1")
	require.NoError(t, err)

	var view orders.View
	require.NoError(t, json.Unmarshal(first, &view))
	require.Equal(t, "o1", view.ID)
	require.Empty(t, view.Creator)
	require.Len(t, view.Items, 1)

	cached, ok, err := mem.Get(context.Background(), cache.Namespace, cache.OrderKey("o1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, string(first), string(cached))

	second, err := svc.GetOrder(context.Background(), "o1", "1.1.1.1")
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Equal(t, 1, src.getCalls)
	require.Equal(t, float64(1), rec.counts["get-order-cache-miss"])
	require.Equal(t, float64(1), rec.counts["get-order-cache-hit"])
	require.Equal(t, 2, rec.timed["get-order-latency-total"])
	require.Equal(t, 1, rec.timed["get-order-latency-ddb"])
	require.Equal(t, 1, rec.timed["get-order-latency-cache"])
}

func TestGetOrder_NotFound(t *testing.T) {
	svc := NewService(newFakeSource(), cache.NewMemory(10), telemetry.Nop{}, zap.NewNop(), Config{TTL: time.Minute, RestrictToCreator: true})

	_, err := svc.GetOrder(context.Background(), "missing", "ip")
	require.ErrorIs(t, err, orders.ErrNotFound)
}

func TestGetOrder_ForbiddenOnMiss(t *testing.T) {
	src := newFakeSource(sampleOrder("o1", "owner", t0, orders.StatusSubmitted))
	svc := NewService(src, cache.NewMemory(10), telemetry.Nop{}, zap.NewNop(), Config{TTL: time.Minute, RestrictToCreator: true})

	_, err := svc.GetOrder(context.Background(), "o1", "stranger")
	require.ErrorIs(t, err, orders.ErrForbidden)
}

func TestGetOrder_ForbiddenOnHitUsesAdminEntry(t *testing.T) {
	src := newFakeSource(sampleOrder("o1", "owner", t0, orders.StatusSubmitted))
	mem := cache.NewMemory(10)
	svc := NewService(src, mem, telemetry.Nop{}, zap.NewNop(), Config{TTL: time.Minute, RestrictToCreator: true})
	ctx := context.Background()

	o := src.orders["o1"]
	require.NoError(t, cache.SetJSON(ctx, mem, cache.OrderKey("o1"), orders.CustomerView(o), time.Minute))
	require.NoError(t, cache.SetJSON(ctx, mem, cache.AdminOrderKey("o1"), orders.AdminView(o), time.Minute))

	_, err := svc.GetOrder(ctx, "o1", "stranger")
	require.ErrorIs(t, err, orders.ErrForbidden)

	_, err = svc.GetOrder(ctx, "o1", "owner")
	require.NoError(t, err)

	require.Equal(t, 0, src.getCalls)
	require.Equal(t, 0, src.metaCalls)
}

func TestGetOrder_ForbiddenOnHitFallsBackToStore(t *testing.T) {
	src := newFakeSource(sampleOrder("o1", "owner", t0, orders.StatusSubmitted))
	mem := cache.NewMemory(10)
	svc := NewService(src, mem, telemetry.Nop{}, zap.NewNop(), Config{TTL: time.Minute, RestrictToCreator: true})
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, mem, cache.OrderKey("o1"), orders.CustomerView(src.orders["o1"]), time.Minute))

	_, err := svc.GetOrder(ctx, "o1", "stranger")
	require.ErrorIs(t, err, orders.ErrForbidden)
	require.Equal(t, 1, src.metaCalls)
	require.Equal(t, 0, src.getCalls)
}

func TestGetOrder_AdminModeIncludesCreator(t *testing.T) {
	src := newFakeSource(sampleOrder("o1", "owner", t0, orders.StatusSubmitted))
	mem := cache.NewMemory(10)
	svc := NewService(src, mem, telemetry.Nop{}, zap.NewNop(), Config{TTL: time.Minute})

	body, err := svc.GetOrder(context.Background(), "o1", "anyone")
	require.NoError(t, err)

	var view orders.View
	require.NoError(t, json.Unmarshal(body, &view))
	require.Equal(t, "owner", view.Creator)

	_, ok, _ := mem.Get(context.Background(), cache.Namespace, cache.AdminOrderKey("o1"))
	require.True(t, ok)
	_, ok, _ = mem.Get(context.Background(), cache.Namespace, cache.OrderKey("o1"))
	require.False(t, ok)
}

func TestGetOrder_CacheFailureFallsBackToStore(t *testing.T) {
	src := newFakeSource(sampleOrder("o1", "owner", t0, orders.StatusSubmitted))
	svc := NewService(src, brokenCache{}, telemetry.Nop{}, zap.NewNop(), Config{TTL: time.Minute, RestrictToCreator: true})

	body, err := svc.GetOrder(context.Background(), "o1", "owner")
	require.NoError(t, err)
	require.Contains(t, string(body), `"id":"o1"`)
}

func TestGetOrder_StoreErrorIsWrapped(t *testing.T) {
	src := newFakeSource()
	src.err = errors.New("throttled")
	svc := NewService(src, cache.NewMemory(10), telemetry.Nop{}, zap.NewNop(), Config{TTL: time.Minute})

	_, err := svc.GetOrder(context.Background(), "o1", "ip")
	require.Error(t, err)
	require.NotErrorIs(t, err, orders.ErrNotFound)
}

func TestListActive_SortedNewestFirstAndCached(t *testing.T) {
	src := newFakeSource(
		sampleOrder("old", "a", t0, orders.StatusSubmitted),
		sampleOrder("new", "b", t0.Add(2*time.Hour), orders.StatusInProgress),
		sampleOrder("mid", "a", t0.Add(time.Hour), orders.StatusWaitingOnCustomer),
		sampleOrder("done", "a", t0.Add(3*time.Hour), orders.StatusCompleted),
	)
	mem := cache.NewMemory(10)
	rec := newCountingRecorder()
	svc := NewService(src, mem, rec, zap.NewNop(), Config{TTL: time.Minute})

	body, err := svc.ListActive(context.Background())
	require.NoError(t, err)

	var rows []orders.Summary
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 3)
	require.Equal(t, "new", rows[0].ID)
	require.Equal(t, "mid", rows[1].ID)
	require.Equal(t, "old", rows[2].ID)
	require.NotContains(t, string(body), "items")
	require.NotContains(t, string(body), "creator")

	again, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, body, again)
	require.Equal(t, 1, src.listCalls)
	require.Equal(t, float64(1), rec.counts["get-all-orders-cache-miss"])
	require.Equal(t, float64(1), rec.counts["get-all-orders-cache-hit"])
	require.Equal(t, 2, rec.timed["get-all-orders-latency"])
}

func TestListByCreator_EmptyIsArray(t *testing.T) {
	svc := NewService(newFakeSource(), cache.NewMemory(10), telemetry.Nop{}, zap.NewNop(), Config{TTL: time.Minute})

	body, err := svc.ListByCreator(context.Background(), "nobody")
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(body))
}

func TestListByCreator_OnlyOwnOrders(t *testing.T) {
	src := newFakeSource(
		sampleOrder("a1", "a", t0, orders.StatusSubmitted),
		sampleOrder("b1", "b", t0, orders.StatusSubmitted),
		sampleOrder("a2", "a", t0.Add(time.Minute), orders.StatusCompleted),
	)
	mem := cache.NewMemory(10)
	svc := NewService(src, mem, telemetry.Nop{}, zap.NewNop(), Config{TTL: time.Minute})

	body, err := svc.ListByCreator(context.Background(), "a")
	require.NoError(t, err)

	var rows []orders.Summary
	require.NoError(t, json.Unmarshal(body, &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "a2", rows[0].ID)
	require.Equal(t, "a1", rows[1].ID)

	_, ok, _ := mem.Get(context.Background(), cache.Namespace, cache.CreatorKey("a"))
	require.True(t, ok)
}
