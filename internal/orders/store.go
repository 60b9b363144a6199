package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/pizza-tracker/internal/aws"
)

const (
	// DynamoDB limits.
	maxTransactItems = 100
	maxBatchWrite    = 25

	batchWriteAttempts = 4
	replaceAttempts    = 3
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	indexName string
	nowFunc   func() time.Time
	backoff   time.Duration
}

// NewStore creates a new orders Store. indexName is the global secondary index
// keyed by (type, creator).
func NewStore(client aws.DynamoDBAPI, tableName, indexName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		nowFunc:   time.Now,
		backoff:   50 * time.Millisecond,
	}
}

// Create persists the metadata record and one record per pizza in a single transaction.
// The metadata put is guarded by attribute_not_exists(pk).
func (s *Store) Create(ctx context.Context, o Order) error {
	if 1+len(o.Items) > maxTransactItems {
		return fmt.Errorf("order %s has too many items: %d", o.ID, len(o.Items))
	}

	meta := MetadataRecord{
		PK:        o.ID,
		SK:        SortKeyMetadata,
		Type:      RecordType,
		Creator:   o.Creator,
		CreatedAt: o.CreatedAt,
		Status:    o.Status,
		NumItems:  len(o.Items),
	}
	metaMap, err := attributevalue.MarshalMap(meta)
	if err != nil {
		return fmt.Errorf("marshal order metadata: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:                &s.tableName,
				Item:                     metaMap,
				ConditionExpression:      awsString("attribute_not_exists(#pk)"),
				ExpressionAttributeNames: map[string]string{"#pk": "pk"},
			},
		},
	}
	for i, p := range o.Items {
		itemMap, err := s.marshalItem(o.ID, i, p, o.CreatedAt)
		if err != nil {
			return err
		}
		transactItems = append(transactItems, types.TransactWriteItem{
			Put: &types.Put{TableName: &s.tableName, Item: itemMap},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("transaction canceled (likely order id exists): %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order with its items in position order. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	records, err := s.queryOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var (
		meta  *MetadataRecord
		items = map[int]Pizza{}
	)
	for _, rec := range records {
		sk, _ := rec["sk"].(*types.AttributeValueMemberS)
		if sk == nil {
			continue
		}
		switch {
		case sk.Value == SortKeyMetadata:
			var m MetadataRecord
			if err := attributevalue.UnmarshalMap(rec, &m); err != nil {
				return nil, fmt.Errorf("unmarshal order metadata: %w", err)
			}
			meta = &m
		case IsItemSortKey(sk.Value):
			idx, err := ItemIndex(sk.Value)
			if err != nil {
				return nil, err
			}
			var it ItemRecord
			if err := attributevalue.UnmarshalMap(rec, &it); err != nil {
				return nil, fmt.Errorf("unmarshal order item: %w", err)
			}
			items[idx] = it.Pizza()
		}
	}
	if meta == nil {
		return nil, nil
	}

	o := meta.Order()
	o.Items = orderedItems(items)
	return &o, nil
}

// GetMetadata fetches only the metadata record. Returns (nil, nil) if not found.
func (s *Store) GetMetadata(ctx context.Context, orderID string) (*MetadataRecord, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            metadataKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var m MetadataRecord
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, fmt.Errorf("unmarshal order metadata: %w", err)
	}
	return &m, nil
}

// ReplaceItems swaps the whole item list of an order owned by creator in one
// transaction: the metadata update carries the ownership and status condition
// plus the numItems seen when the stored items were read, every new item is
// put over its slot and stored slots past the new length are deleted.
// A transaction lost to a concurrent writer is retried against a fresh read.
// Returns ErrForbidden unless creator owns an existing, editable order.
func (s *Store) ReplaceItems(ctx context.Context, orderID, creator string, items []Pizza) error {
	for attempt := 0; attempt < replaceAttempts; attempt++ {
		meta, stored, err := s.itemSnapshot(ctx, orderID)
		if err != nil {
			return err
		}
		if meta == nil || meta.Creator != creator || !meta.Status.Editable() {
			return ErrForbidden
		}

		transactItems, err := s.replaceTransaction(orderID, creator, meta.NumItems, stored, items)
		if err != nil {
			return err
		}
		_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
		if err == nil {
			return nil
		}
		var tce *types.TransactionCanceledException
		if !errors.As(err, &tce) || !conditionFailed(tce) {
			return fmt.Errorf("transact write: %w", err)
		}
		// the metadata changed since the snapshot; the next read decides
	}
	return fmt.Errorf("order %s kept changing during item replacement: %w", orderID, ErrConflict)
}

// itemSnapshot reads the metadata record and the indexes of every stored item.
func (s *Store) itemSnapshot(ctx context.Context, orderID string) (*MetadataRecord, []int, error) {
	records, err := s.queryOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	var (
		meta   *MetadataRecord
		stored []int
	)
	for _, rec := range records {
		sk, _ := rec["sk"].(*types.AttributeValueMemberS)
		if sk == nil {
			continue
		}
		switch {
		case sk.Value == SortKeyMetadata:
			var m MetadataRecord
			if err := attributevalue.UnmarshalMap(rec, &m); err != nil {
				return nil, nil, fmt.Errorf("unmarshal order metadata: %w", err)
			}
			meta = &m
		case IsItemSortKey(sk.Value):
			idx, err := ItemIndex(sk.Value)
			if err != nil {
				return nil, nil, err
			}
			stored = append(stored, idx)
		}
	}
	return meta, stored, nil
}

func (s *Store) replaceTransaction(orderID, creator string, prevNumItems int, stored []int, items []Pizza) ([]types.TransactWriteItem, error) {
	now := s.nowFunc().UTC()
	values, err := attributevalue.MarshalMap(map[string]interface{}{
		":numItems":     len(items),
		":prevNumItems": prevNumItems,
		":lastUpdated":  now,
		":creator":      creator,
		":waiting":      StatusWaitingOnCustomer,
		":submitted":    StatusSubmitted,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal update values: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:        &s.tableName,
				Key:              metadataKey(orderID),
				UpdateExpression: awsString("SET #numItems = :numItems, #lastUpdated = :lastUpdated"),
				ConditionExpression: awsString("attribute_exists(#pk) AND #creator = :creator" +
					" AND (#status = :waiting OR #status = :submitted) AND #numItems = :prevNumItems"),
				ExpressionAttributeNames: map[string]string{
					"#pk":          "pk",
					"#creator":     "creator",
					"#status":      "status",
					"#numItems":    "numItems",
					"#lastUpdated": "lastUpdated",
				},
				ExpressionAttributeValues: values,
			},
		},
	}
	for i, p := range items {
		itemMap, err := s.marshalItem(orderID, i, p, now)
		if err != nil {
			return nil, err
		}
		transactItems = append(transactItems, types.TransactWriteItem{
			Put: &types.Put{TableName: &s.tableName, Item: itemMap},
		})
	}
	for _, idx := range stored {
		if idx < len(items) {
			continue
		}
		transactItems = append(transactItems, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: &s.tableName,
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: orderID},
					"sk": &types.AttributeValueMemberS{Value: ItemSortKey(idx)},
				},
			},
		})
	}
	if len(transactItems) > maxTransactItems {
		return nil, fmt.Errorf("order %s item replacement needs %d writes", orderID, len(transactItems))
	}
	return transactItems, nil
}

// UpdateStatus conditionally updates the order status from expected -> newStatus
// and stamps lastUpdated. Returns ErrStatusMismatch if the condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expectedStatus, newStatus Status) error {
	now := s.nowFunc().UTC()
	ua, err := attributevalue.Marshal(now)
	if err != nil {
		return fmt.Errorf("marshal timestamp: %w", err)
	}

	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      metadataKey(orderID),
		UpdateExpression:         awsString("SET #s = :new, #ua = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status", "#ua": "lastUpdated"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: string(newStatus)},
			":expected": &types.AttributeValueMemberS{Value: string(expectedStatus)},
			":ua":       ua,
		},
		ConditionExpression: awsString("#s = :expected"),
	}

	_, err = s.client.UpdateItem(ctx, input)
	if err != nil {
		// detect conditional check failing
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ListActive returns every order that is not COMPLETED, without items.
func (s *Store) ListActive(ctx context.Context) ([]Order, error) {
	return s.queryIndex(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              &s.indexName,
		KeyConditionExpression: awsString("#type = :type"),
		FilterExpression:       awsString("#status <> :completed"),
		ExpressionAttributeNames: map[string]string{
			"#type":   "type",
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":type":      &types.AttributeValueMemberS{Value: RecordType},
			":completed": &types.AttributeValueMemberS{Value: string(StatusCompleted)},
		},
	})
}

// ListByCreator returns every order created by creator, without items.
func (s *Store) ListByCreator(ctx context.Context, creator string) ([]Order, error) {
	return s.queryIndex(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              &s.indexName,
		KeyConditionExpression: awsString("#type = :type AND #creator = :creator"),
		ExpressionAttributeNames: map[string]string{
			"#type":    "type",
			"#creator": "creator",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":type":    &types.AttributeValueMemberS{Value: RecordType},
			":creator": &types.AttributeValueMemberS{Value: creator},
		},
	})
}

// Delete removes the metadata record and every item record of an order.
// Only the load-test cleanup calls it.
func (s *Store) Delete(ctx context.Context, orderID string) error {
	records, err := s.queryOrder(ctx, orderID)
	if err != nil {
		return err
	}
	requests := make([]types.WriteRequest, 0, len(records))
	for _, rec := range records {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{"pk": rec["pk"], "sk": rec["sk"]},
			},
		})
	}
	return s.batchWrite(ctx, requests)
}

// queryOrder reads every record under pk=orderID.
func (s *Store) queryOrder(ctx context.Context, orderID string) ([]map[string]types.AttributeValue, error) {
	input := &dyn.QueryInput{
		TableName:                &s.tableName,
		KeyConditionExpression:   awsString("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": "pk"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: orderID},
		},
		ConsistentRead: awsBool(true),
	}

	var out []map[string]types.AttributeValue
	p := dyn.NewQueryPaginator(s.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query order: %w", err)
		}
		out = append(out, page.Items...)
	}
	return out, nil
}

func (s *Store) queryIndex(ctx context.Context, input *dyn.QueryInput) ([]Order, error) {
	var out []Order
	p := dyn.NewQueryPaginator(s.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query index: %w", err)
		}
		for _, item := range page.Items {
			var m MetadataRecord
			if err := attributevalue.UnmarshalMap(item, &m); err != nil {
				return nil, fmt.Errorf("unmarshal order metadata: %w", err)
			}
			out = append(out, m.Order())
		}
	}
	return out, nil
}

// batchWrite sends requests in chunks of 25 and resubmits unprocessed items.
func (s *Store) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += maxBatchWrite {
		end := start + maxBatchWrite
		if end > len(requests) {
			end = len(requests)
		}
		pending := requests[start:end]
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == batchWriteAttempts {
				return fmt.Errorf("batch write: %d requests left unprocessed", len(pending))
			}
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * s.backoff):
				}
			}
			out, err := s.client.BatchWriteItem(ctx, &dyn.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.tableName: pending},
			})
			if err != nil {
				return fmt.Errorf("batch write: %w", err)
			}
			pending = out.UnprocessedItems[s.tableName]
		}
	}
	return nil
}

func (s *Store) marshalItem(orderID string, index int, p Pizza, at time.Time) (map[string]types.AttributeValue, error) {
	toppings := p.Toppings
	if toppings == nil {
		toppings = []string{}
	}
	m, err := attributevalue.MarshalMap(ItemRecord{
		PK:         orderID,
		SK:         ItemSortKey(index),
		Size:       p.Size,
		Crust:      p.Crust,
		Sauce:      p.Sauce,
		Toppings:   toppings,
		LastUpdate: at,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}
	return m, nil
}

func metadataKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: orderID},
		"sk": &types.AttributeValueMemberS{Value: SortKeyMetadata},
	}
}

func orderedItems(byIndex map[int]Pizza) []Pizza {
	idx := make([]int, 0, len(byIndex))
	for i := range byIndex {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	items := make([]Pizza, 0, len(idx))
	for _, i := range idx {
		items = append(items, byIndex[i])
	}
	return items
}

func conditionFailed(tce *types.TransactionCanceledException) bool {
	for _, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
