package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/pizza-tracker/internal/loadgen"
	"github.com/imrishuroy/pizza-tracker/internal/validation"
)

type input struct {
	NumOrders int `json:"numOrders"`
}

type output struct {
	Orders []validation.ItemsRequest `json:"orders"`
}

func main() {
	g := loadgen.NewGenerator(time.Now().UnixNano())
	lambda.Start(func(_ context.Context, in input) (output, error) {
		return output{Orders: g.Orders(in.NumOrders)}, nil
	})
}
