package idempotency

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a small in-memory table that understands the store's
// condition expressions.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	getCalls    int
	updateCalls int
	putErr      error
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func keyOf(attrs map[string]types.AttributeValue) (string, error) {
	v, ok := attrs["idempotency_key"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing key")
	}
	return v.Value, nil
}

func str(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func num(item map[string]types.AttributeValue, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.putErr != nil {
		return nil, m.putErr
	}
	k, err := keyOf(params.Item)
	if err != nil {
		return nil, err
	}
	// attribute_not_exists(idempotency_key) OR #s = :failed OR expires_at < :now
	if existing, ok := m.table[k]; ok && params.ConditionExpression != nil {
		reclaimable := str(existing, "status") == StatusFailed ||
			num(existing, "expires_at") < num(params.ExpressionAttributeValues, ":now")
		if !reclaimable {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	k, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k, err := keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok || str(item, "status") != str(params.ExpressionAttributeValues, ":inprogress") {
		return nil, &types.ConditionalCheckFailedException{}
	}

	updated := make(map[string]types.AttributeValue, len(item))
	for name, v := range item {
		updated[name] = v
	}
	set := map[string]string{
		":done":   "status",
		":failed": "status",
		":oid":    "order_id",
		":rb":     "response_body",
		":rs":     "response_status",
		":ua":     "updated_at",
		":n":      "note",
	}
	for placeholder, attr := range set {
		if v, ok := params.ExpressionAttributeValues[placeholder]; ok {
			updated[attr] = v
		}
	}
	m.table[k] = updated
	return &dyn.UpdateItemOutput{}, nil
}
