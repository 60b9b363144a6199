package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Publisher sends order lifecycle events (ORDER_CREATED,
// ORDER_ITEMS_REPLACED, ORDER_STATUS_CHANGED) to an SQS queue.
//
// On a FIFO queue every event of one order shares a message group, so
// consumers see an order's events in write order. Deduplication is left to
// the queue's content-based setting.
type Publisher struct {
	sqs      SQSAPI
	queueURL string
	fifo     bool
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		sqs:      client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// PublishOrderEvent sends body, a JSON event, for orderID. Empty attribute
// values are dropped since SQS rejects them.
func (p *Publisher) PublishOrderEvent(ctx context.Context, orderID, body string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: &body,
	}
	if p.fifo {
		input.MessageGroupId = &orderID
	}

	attrs := make(map[string]sqstypes.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		if v == "" {
			continue
		}
		attrs[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}
	if len(attrs) > 0 {
		input.MessageAttributes = attrs
	}

	if _, err := p.sqs.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("publish event for order %s: %w", orderID, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
