// Package idempotency lets POST /orders retries replay the first response
// instead of creating a second order.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// API is the slice of the DynamoDB client the store needs.
type API interface {
	GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error)
	PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error)
}

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    API
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a Store over tableName. Records expire after ttlWindow.
func NewStore(client API, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// ErrConditionFailed indicates the record was not in the state the write expected.
var ErrConditionFailed = errors.New("conditional check failed")

// Key scopes a client-supplied key to the caller.
func Key(caller, clientKey string) string {
	return caller + "#" + clientKey
}

// Claim creates an IN_PROGRESS record for key.
// Returns (rec, true, nil) when this request owns the key.
// Returns (existing, false, nil) when another request claimed it first.
// FAILED and expired records are claimed again.
func (s *Store) Claim(ctx context.Context, key string) (*Record, bool, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		// DynamoDB TTL deletes lazily, so expired records still block the key until swept
		ConditionExpression:      awsString("attribute_not_exists(idempotency_key) OR #s = :failed OR expires_at < :now"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err == nil {
		return &rec, true, nil
	}
	if !conditionFailed(err) {
		return nil, false, fmt.Errorf("put item: %w", err)
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// swept between the put and the read
		return nil, false, fmt.Errorf("claim %q: %w", key, ErrConditionFailed)
	}
	return existing, false, nil
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            recordKey(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// Complete stores the response of a claimed request so retries can replay it.
func (s *Store) Complete(ctx context.Context, key, orderID, responseBody string, responseStatus int) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 recordKey(key),
		UpdateExpression:    awsString("SET #s = :done, order_id = :oid, response_body = :rb, response_status = :rs, updated_at = :ua"),
		ConditionExpression: awsString("#s = :inprogress"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":       &types.AttributeValueMemberS{Value: StatusDone},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":oid":        &types.AttributeValueMemberS{Value: orderID},
			":rb":         &types.AttributeValueMemberS{Value: responseBody},
			":rs":         &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
			":ua":         &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return fmt.Errorf("complete %q: %w", key, ErrConditionFailed)
		}
		return fmt.Errorf("update item (complete): %w", err)
	}
	return nil
}

// Fail releases a claimed key so the client can retry it.
func (s *Store) Fail(ctx context.Context, key, note string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 recordKey(key),
		UpdateExpression:    awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ConditionExpression: awsString("#s = :inprogress"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":     &types.AttributeValueMemberS{Value: StatusFailed},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":n":          &types.AttributeValueMemberS{Value: note},
			":ua":         &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return fmt.Errorf("fail %q: %w", key, ErrConditionFailed)
		}
		return fmt.Errorf("update item (fail): %w", err)
	}
	return nil
}

func recordKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

func conditionFailed(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
