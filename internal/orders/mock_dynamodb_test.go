package orders

import (
	"context"
	"errors"
	"sort"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a minimal single-table mock keyed by pk|sk.
// It understands exactly the expressions the Store issues.
type mockDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	// unprocessedOnce makes the first BatchWriteItem call report every request as unprocessed.
	unprocessedOnce bool
	batchCalls      int
	transactCalls   int

	// beforeTransact runs once ahead of the next TransactWriteItems call,
	// standing in for a writer that lands between a read and a commit.
	beforeTransact func()
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func keyOf(item map[string]types.AttributeValue) string {
	return strAttr(item, "pk") + "|" + strAttr(item, "sk")
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[keyOf(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[keyOf(params.Item)] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, keyOf(params.Key))
	return &dyn.DeleteItemOutput{}, nil
}

// UpdateItem supports the status update: SET #s = :new, #ua = :ua IF #s = :expected.
func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(params.Key)
	item, exists := m.items[k]
	if params.ConditionExpression != nil && *params.ConditionExpression == "#s = :expected" {
		expected := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS).Value
		if !exists || strAttr(item, "status") != expected {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if !exists {
		return nil, errors.New("item not found")
	}
	m.applyUpdate(item, params.ExpressionAttributeValues)
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) applyUpdate(item, values map[string]types.AttributeValue) {
	targets := map[string]string{
		":new":         "status",
		":ua":          "lastUpdated",
		":numItems":    "numItems",
		":lastUpdated": "lastUpdated",
	}
	for placeholder, attr := range targets {
		if v, ok := values[placeholder]; ok {
			item[attr] = v
		}
	}
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := params.ExpressionAttributeValues
	match := func(item map[string]types.AttributeValue) bool {
		if params.IndexName != nil {
			if strAttr(item, "type") != vals[":type"].(*types.AttributeValueMemberS).Value {
				return false
			}
			if c, ok := vals[":creator"]; ok && strAttr(item, "creator") != c.(*types.AttributeValueMemberS).Value {
				return false
			}
			if c, ok := vals[":completed"]; ok && strAttr(item, "status") == c.(*types.AttributeValueMemberS).Value {
				return false
			}
			return true
		}
		return strAttr(item, "pk") == vals[":pk"].(*types.AttributeValueMemberS).Value
	}

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &dyn.QueryOutput{}
	for _, k := range keys {
		if item := m.items[k]; match(item) {
			out.Items = append(out.Items, copyItem(item))
		}
	}
	return out, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	hook := m.beforeTransact
	m.beforeTransact = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++

	if len(params.TransactItems) > maxTransactItems {
		return nil, errors.New("too many transact items")
	}
	seen := map[string]bool{}
	for _, it := range params.TransactItems {
		var k string
		switch {
		case it.Put != nil:
			k = keyOf(it.Put.Item)
		case it.Update != nil:
			k = keyOf(it.Update.Key)
		case it.Delete != nil:
			k = keyOf(it.Delete.Key)
		}
		if seen[k] {
			return nil, errors.New("transaction touches " + k + " twice")
		}
		seen[k] = true
	}

	// First pass: verify condition expressions
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, it := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: awsString("None")}
		ok := true
		switch {
		case it.Put != nil && it.Put.ConditionExpression != nil:
			_, exists := m.items[keyOf(it.Put.Item)]
			ok = !exists
		case it.Update != nil && it.Update.ConditionExpression != nil:
			ok = m.replaceConditionHolds(it.Update)
		}
		if !ok {
			reasons[i] = types.CancellationReason{Code: awsString("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	// Second pass: apply
	for _, it := range params.TransactItems {
		switch {
		case it.Put != nil:
			m.items[keyOf(it.Put.Item)] = copyItem(it.Put.Item)
		case it.Update != nil:
			m.applyUpdate(m.items[keyOf(it.Update.Key)], it.Update.ExpressionAttributeValues)
		case it.Delete != nil:
			delete(m.items, keyOf(it.Delete.Key))
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// replaceConditionHolds evaluates
// attribute_exists(#pk) AND #creator = :creator AND (#status = :waiting OR #status = :submitted)
// AND #numItems = :prevNumItems.
func (m *mockDynamo) replaceConditionHolds(u *types.Update) bool {
	item, exists := m.items[keyOf(u.Key)]
	if !exists {
		return false
	}
	vals := u.ExpressionAttributeValues
	if strAttr(item, "creator") != vals[":creator"].(*types.AttributeValueMemberS).Value {
		return false
	}
	status := strAttr(item, "status")
	if status != vals[":waiting"].(*types.AttributeValueMemberS).Value &&
		status != vals[":submitted"].(*types.AttributeValueMemberS).Value {
		return false
	}
	prev, _ := vals[":prevNumItems"].(*types.AttributeValueMemberN)
	stored, _ := item["numItems"].(*types.AttributeValueMemberN)
	return prev != nil && stored != nil && prev.Value == stored.Value
}

func (m *mockDynamo) BatchWriteItem(ctx context.Context, params *dyn.BatchWriteItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchWriteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	if m.unprocessedOnce {
		m.unprocessedOnce = false
		return &dyn.BatchWriteItemOutput{UnprocessedItems: params.RequestItems}, nil
	}
	for _, reqs := range params.RequestItems {
		if len(reqs) > maxBatchWrite {
			return nil, errors.New("too many requests in batch")
		}
		for _, r := range reqs {
			switch {
			case r.PutRequest != nil:
				m.items[keyOf(r.PutRequest.Item)] = copyItem(r.PutRequest.Item)
			case r.DeleteRequest != nil:
				delete(m.items, keyOf(r.DeleteRequest.Key))
			}
		}
	}
	return &dyn.BatchWriteItemOutput{}, nil
}

// count returns how many stored records live under pk.
func (m *mockDynamo) count(pk string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, item := range m.items {
		if strAttr(item, "pk") == pk {
			n++
		}
	}
	return n
}
