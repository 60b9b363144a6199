package main

import (
	"context"
	"errors"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/pizza-tracker/internal/app"
)

type input struct {
	OrderID string `json:"orderId"`
}

type output struct {
	Success bool `json:"success"`
}

func main() {
	a, err := app.New(context.Background())
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer func() { _ = a.Close() }()

	lambda.Start(func(ctx context.Context, in input) (output, error) {
		if in.OrderID == "" {
			return output{}, errors.New("orderId is required")
		}
		// removes every record under the order; the stream drives the cache cleanup
		if err := a.Orders.Delete(ctx, in.OrderID); err != nil {
			a.Log.Error("cleanup failed", zap.String("order_id", in.OrderID), zap.Error(err))
			return output{}, err
		}
		return output{Success: true}, nil
	})
}
