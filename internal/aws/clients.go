package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Clients holds the SDK clients the order service runs on.
type Clients struct {
	DynamoDB       DynamoDBAPI
	SQS            SQSAPI
	CloudWatch     CloudWatchAPI
	SecretsManager SecretsAPI
}

func NewClients(ctx context.Context, opts Options) (*Clients, error) {
	cfg, err := LoadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &Clients{
		DynamoDB:       dynamodb.NewFromConfig(cfg),
		SQS:            sqs.NewFromConfig(cfg),
		CloudWatch:     cloudwatch.NewFromConfig(cfg),
		SecretsManager: secretsmanager.NewFromConfig(cfg),
	}, nil
}
