// Package app wires configuration, AWS clients, the cache and the order
// services for the Lambda entry points and the local server.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/imrishuroy/pizza-tracker/internal/aws"
	"github.com/imrishuroy/pizza-tracker/internal/cache"
	"github.com/imrishuroy/pizza-tracker/internal/config"
	"github.com/imrishuroy/pizza-tracker/internal/idempotency"
	"github.com/imrishuroy/pizza-tracker/internal/logging"
	"github.com/imrishuroy/pizza-tracker/internal/orders"
	"github.com/imrishuroy/pizza-tracker/internal/reads"
	"github.com/imrishuroy/pizza-tracker/internal/telemetry"
)

// redisSecretField is the JSON field of the cache secret holding the Redis URL.
const redisSecretField = "redis"

type App struct {
	Config   config.Config
	Log      *zap.Logger
	Clients  *aws.Clients
	Cache    cache.Cache
	Recorder telemetry.Recorder
	// Registry is set for local runs, where metrics are scraped from /metrics.
	Registry *prometheus.Registry

	Store  *orders.Store
	Orders *orders.Service
	Reads  *reads.Service
	// Idempotency is nil when IDEMPOTENCY_TABLE is not configured.
	Idempotency *idempotency.Store

	closers []func() error
}

// New loads the configuration from the environment and builds the App.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, syncLog, err := logging.New(cfg.LogProduction)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	clients, err := aws.NewClients(ctx, aws.Options{
		Region:      cfg.AWS.Region,
		Endpoint:    cfg.AWS.Endpoint,
		MaxAttempts: cfg.AWS.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}

	a, err := Build(cfg, log, clients)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, syncLog)
	return a, nil
}

// Build wires the components from an already loaded configuration.
func Build(cfg config.Config, log *zap.Logger, clients *aws.Clients) (*App, error) {
	c, err := NewCache(cfg.Cache, cfg.SecretID, clients.SecretsManager)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		Clients: clients,
		Cache:   c,
	}

	if cfg.RunLocal {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Recorder = telemetry.NewPrometheus(a.Registry)
	} else {
		a.Recorder = telemetry.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, cfg.Metrics.Service, log)
	}

	var publisher orders.EventPublisher
	if cfg.NotificationsEnabled {
		if cfg.QueueURL == "" {
			return nil, errors.New("NOTIFICATIONS_ENABLED requires ORDERS_QUEUE_URL")
		}
		publisher = aws.NewPublisher(clients.SQS, cfg.QueueURL)
	}

	a.Store = orders.NewStore(clients.DynamoDB, cfg.TableName, cfg.TypeIndexName)
	a.Orders = orders.NewService(a.Store, publisher, log)
	a.Reads = reads.NewService(a.Store, c, a.Recorder, log, reads.Config{
		TTL:               cfg.Cache.TTL,
		RestrictToCreator: cfg.RestrictToCreator,
	})
	if cfg.IdempotencyTable != "" {
		a.Idempotency = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	}

	log.Info("app initialised",
		zap.String("table", cfg.TableName),
		zap.Bool("restrict_to_creator", cfg.RestrictToCreator),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Bool("notifications", cfg.NotificationsEnabled),
		zap.Bool("idempotency", a.Idempotency != nil),
	)
	return a, nil
}

// Close flushes the logger.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewCache selects the cache backend. The Redis backend connects on first use.
func NewCache(cfg config.Cache, secretID string, secrets aws.SecretsAPI) (cache.Cache, error) {
	if !cfg.Enabled {
		return cache.Noop{}, nil
	}

	switch cfg.Backend {
	case "memory":
		return cache.NewMemory(cfg.Capacity), nil
	case "redis":
		if cfg.Addr == "" && secretID == "" {
			return nil, errors.New("redis cache needs CACHE_ADDR or SECRET_ID")
		}
		return cache.NewLazy(cache.RedisFromURL(redisURL(cfg.Addr, secretID, secrets))), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// redisURL prefers an explicit address and falls back to the secret.
func redisURL(addr, secretID string, secrets aws.SecretsAPI) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if addr != "" {
			return addr, nil
		}
		return aws.SecretField(ctx, secrets, secretID, redisSecretField)
	}
}
