package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/imrishuroy/pizza-tracker/internal/app"
	"github.com/imrishuroy/pizza-tracker/internal/handlers"
)

func setupRouter(a *app.App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handlers.CORS(), handlers.RequestID(), handlers.RequestLogger(a.Log), handlers.FlushTelemetry(a.Recorder))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if a.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	}

	cfg := handlers.HandlerConfig{
		Reads:             a.Reads,
		Writes:            a.Orders,
		RestrictToCreator: a.Config.RestrictToCreator,
		Logger:            a.Log,
	}
	if a.Idempotency != nil {
		cfg.Idempotency = a.Idempotency
	}
	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func main() {
	a, err := app.New(context.Background())
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.Config.LogProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := setupRouter(a)

	if a.Config.RunLocal {
		a.Log.Info("running local server", zap.String("addr", a.Config.HTTPAddr))
		if err := r.Run(a.Config.HTTPAddr); err != nil {
			a.Log.Fatal("local server stopped", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
