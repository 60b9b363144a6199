// Package projector keeps cached order views in step with the orders table by
// applying DynamoDB stream records to the cache.
//
// Every cache mutation is best effort. A failed mutation leaves a stale or
// missing entry that the read path rebuilds on its next miss, so the handler
// logs failures and never hands them back to the stream trigger.
package projector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/pizza-tracker/internal/cache"
	"github.com/imrishuroy/pizza-tracker/internal/orders"
)

type Projector struct {
	cache cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

func New(c cache.Cache, ttl time.Duration, log *zap.Logger) *Projector {
	return &Projector{cache: c, ttl: ttl, log: log}
}

// Handle applies every record of the batch in order. It always returns nil.
func (p *Projector) Handle(ctx context.Context, ev events.DynamoDBEvent) error {
	for _, rec := range ev.Records {
		if err := p.apply(ctx, rec); err != nil {
			p.log.Error("stream record not fully applied",
				zap.String("event_id", rec.EventID),
				zap.String("event_name", rec.EventName),
				zap.String("order_id", partitionKey(rec.Change)),
				zap.String("sk", sortKey(rec.Change)),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (p *Projector) apply(ctx context.Context, rec events.DynamoDBEventRecord) error {
	sk := sortKey(rec.Change)
	removed := rec.EventName == string(events.DynamoDBOperationTypeRemove)

	switch {
	case sk == orders.SortKeyMetadata && removed:
		var meta orders.MetadataRecord
		if err := decodeImage(rec.Change.OldImage, &meta); err != nil {
			return err
		}
		return p.metadataRemoved(ctx, meta)

	case sk == orders.SortKeyMetadata:
		var meta orders.MetadataRecord
		if err := decodeImage(rec.Change.NewImage, &meta); err != nil {
			return err
		}
		return p.metadataUpserted(ctx, meta)

	case orders.IsItemSortKey(sk) && removed:
		index, err := orders.ItemIndex(sk)
		if err != nil {
			return err
		}
		return p.itemRemoved(ctx, partitionKey(rec.Change), index)

	case orders.IsItemSortKey(sk):
		var item orders.ItemRecord
		if err := decodeImage(rec.Change.NewImage, &item); err != nil {
			return err
		}
		index, err := orders.ItemIndex(item.SK)
		if err != nil {
			return err
		}
		return p.itemUpserted(ctx, item.PK, index, item.Pizza())

	default:
		p.log.Debug("ignoring stream record", zap.String("sk", sk), zap.String("event_name", rec.EventName))
		return nil
	}
}

// metadataUpserted rewrites both single-order entries with the new metadata
// and upserts the summary row into both list entries.
func (p *Projector) metadataUpserted(ctx context.Context, meta orders.MetadataRecord) error {
	o := meta.Order()
	summary := orders.SummaryOf(o)

	items, known, err := p.cachedItems(ctx, o.ID)
	if err != nil {
		// an unreadable entry is treated as missing; list rows still get updated
		p.log.Warn("read cached order", zap.String("order_id", o.ID), zap.Error(err))
		known = false
	}
	if !known && o.NumItems == 0 {
		items, known = []orders.Pizza{}, true
	}
	if known && len(items) > o.NumItems {
		items = items[:o.NumItems]
	}
	o.Items = items

	var steps []func() error
	if known {
		steps = append(steps,
			func() error { return p.set(ctx, cache.OrderKey(o.ID), orders.CustomerView(o)) },
			func() error { return p.set(ctx, cache.AdminOrderKey(o.ID), orders.AdminView(o)) },
		)
	} else {
		// items are unknown, so neither entry can be written
		steps = append(steps,
			func() error { return p.delete(ctx, cache.OrderKey(o.ID)) },
			func() error { return p.delete(ctx, cache.AdminOrderKey(o.ID)) },
		)
	}
	if o.Status == orders.StatusCompleted {
		steps = append(steps, func() error { return p.removeRow(ctx, cache.AllOrdersKey, o.ID) })
	} else {
		steps = append(steps, func() error { return p.upsertRow(ctx, cache.AllOrdersKey, summary) })
	}
	if o.Creator != "" {
		steps = append(steps, func() error { return p.upsertRow(ctx, cache.CreatorKey(o.Creator), summary) })
	}
	return fanOut(steps...)
}

// metadataRemoved drops both single-order entries and the order's list rows.
func (p *Projector) metadataRemoved(ctx context.Context, meta orders.MetadataRecord) error {
	steps := []func() error{
		func() error { return p.delete(ctx, cache.OrderKey(meta.PK)) },
		func() error { return p.delete(ctx, cache.AdminOrderKey(meta.PK)) },
		func() error { return p.removeRow(ctx, cache.AllOrdersKey, meta.PK) },
	}
	if meta.Creator != "" {
		steps = append(steps, func() error { return p.removeRow(ctx, cache.CreatorKey(meta.Creator), meta.PK) })
	}
	return fanOut(steps...)
}

// itemUpserted places the pizza at its index in whichever single-order
// entries are cached. Missing entries are left for the read path to build.
func (p *Projector) itemUpserted(ctx context.Context, orderID string, index int, pizza orders.Pizza) error {
	update := func(key string) error {
		var view orders.View
		ok, err := cache.GetJSON(ctx, p.cache, key, &view)
		if err != nil || !ok {
			return err
		}
		switch {
		case index < len(view.Items):
			view.Items[index] = pizza
		case index == len(view.Items):
			view.Items = append(view.Items, pizza)
		default:
			// a gap means earlier items are missing from the entry
			return p.delete(ctx, key)
		}
		return p.set(ctx, key, view)
	}

	return fanOut(
		func() error { return update(cache.OrderKey(orderID)) },
		func() error { return update(cache.AdminOrderKey(orderID)) },
	)
}

// itemRemoved empties the cached items of both single-order entries; the
// upserts that follow refill them. A slot at or past the entry's numItems was
// dropped by a shrinking replacement and leaves the entry alone.
func (p *Projector) itemRemoved(ctx context.Context, orderID string, index int) error {
	if orderID == "" {
		return errors.New("item remove without pk")
	}
	empty := func(key string) error {
		var view orders.View
		ok, err := cache.GetJSON(ctx, p.cache, key, &view)
		if err != nil || !ok {
			return err
		}
		if index >= view.NumItems {
			return nil
		}
		view.Items = []orders.Pizza{}
		return p.set(ctx, key, view)
	}

	return fanOut(
		func() error { return empty(cache.OrderKey(orderID)) },
		func() error { return empty(cache.AdminOrderKey(orderID)) },
	)
}

// cachedItems returns the items held by the customer entry, or the admin
// entry when the customer one is missing.
func (p *Projector) cachedItems(ctx context.Context, orderID string) ([]orders.Pizza, bool, error) {
	for _, key := range []string{cache.OrderKey(orderID), cache.AdminOrderKey(orderID)} {
		var view orders.View
		ok, err := cache.GetJSON(ctx, p.cache, key, &view)
		if err != nil {
			return nil, false, err
		}
		if ok {
			if view.Items == nil {
				view.Items = []orders.Pizza{}
			}
			return view.Items, true, nil
		}
	}
	return nil, false, nil
}

// upsertRow replaces the row with the same id or adds it, keeping the list
// newest first. A missing list is seeded with the single row.
func (p *Projector) upsertRow(ctx context.Context, key string, row orders.Summary) error {
	var rows []orders.Summary
	ok, err := cache.GetJSON(ctx, p.cache, key, &rows)
	if err != nil {
		return err
	}
	if !ok {
		return p.set(ctx, key, []orders.Summary{row})
	}

	replaced := false
	for i := range rows {
		if rows[i].ID == row.ID {
			rows[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, row)
	}
	orders.SortSummaries(rows)
	return p.set(ctx, key, rows)
}

// removeRow drops the row with the given id. A missing list is left alone.
func (p *Projector) removeRow(ctx context.Context, key, orderID string) error {
	var rows []orders.Summary
	ok, err := cache.GetJSON(ctx, p.cache, key, &rows)
	if err != nil || !ok {
		return err
	}

	kept := make([]orders.Summary, 0, len(rows))
	for _, r := range rows {
		if r.ID != orderID {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(rows) {
		return nil
	}
	return p.set(ctx, key, kept)
}

func (p *Projector) set(ctx context.Context, key string, v interface{}) error {
	if err := cache.SetJSON(ctx, p.cache, key, v, p.ttl); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (p *Projector) delete(ctx context.Context, key string) error {
	if err := p.cache.Delete(ctx, cache.Namespace, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// fanOut runs independent cache mutations concurrently. Each one runs to
// completion whatever happens to the others; every failure is reported.
func fanOut(steps ...func() error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(steps))
	for i, step := range steps {
		wg.Go(func() { errs[i] = step() })
	}
	wg.Wait()
	return errors.Join(errs...)
}
