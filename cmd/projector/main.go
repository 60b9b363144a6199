package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/pizza-tracker/internal/app"
	"github.com/imrishuroy/pizza-tracker/internal/projector"
)

func main() {
	a, err := app.New(context.Background())
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer func() { _ = a.Close() }()

	p := projector.New(a.Cache, a.Config.Cache.TTL, a.Log.Named("projector"))
	lambda.Start(p.Handle)
}
