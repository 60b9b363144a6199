package app

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/pizza-tracker/internal/aws"
	"github.com/imrishuroy/pizza-tracker/internal/cache"
	"github.com/imrishuroy/pizza-tracker/internal/config"
	"github.com/imrishuroy/pizza-tracker/internal/telemetry"
)

type fakeSecrets struct {
	value string
	calls int
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	return &secretsmanager.GetSecretValueOutput{SecretString: &f.value}, nil
}

func baseConfig() config.Config {
	return config.Config{
		TableName:         "orders",
		TypeIndexName:     "type",
		IdempotencyTTL:    48 * time.Hour,
		RestrictToCreator: true,
		Cache: config.Cache{
			Enabled:  true,
			Backend:  "memory",
			TTL:      time.Minute,
			Capacity: 100,
		},
		Metrics: config.Metrics{Namespace: "PizzaTracker", Service: "pizza-tracker"},
	}
}

func TestBuild_LocalRun(t *testing.T) {
	cfg := baseConfig()
	cfg.RunLocal = true

	a, err := Build(cfg, zap.NewNop(), &aws.Clients{})
	require.NoError(t, err)
	require.NotNil(t, a.Registry)
	require.IsType(t, &telemetry.Prometheus{}, a.Recorder)
	require.IsType(t, &cache.Memory{}, a.Cache)
	require.Nil(t, a.Idempotency)
	require.NotNil(t, a.Orders)
	require.NotNil(t, a.Reads)
	require.NoError(t, a.Close())
}

func TestBuild_Lambda(t *testing.T) {
	cfg := baseConfig()
	cfg.IdempotencyTable = "idempotency"

	a, err := Build(cfg, zap.NewNop(), &aws.Clients{})
	require.NoError(t, err)
	require.Nil(t, a.Registry)
	require.IsType(t, &telemetry.CloudWatch{}, a.Recorder)
	require.NotNil(t, a.Idempotency)
}

func TestBuild_NotificationsNeedQueue(t *testing.T) {
	cfg := baseConfig()
	cfg.NotificationsEnabled = true

	_, err := Build(cfg, zap.NewNop(), &aws.Clients{})
	require.Error(t, err)

	cfg.QueueURL = "https://sqs.us-east-1.amazonaws.com/123/orders"
	_, err = Build(cfg, zap.NewNop(), &aws.Clients{})
	require.NoError(t, err)
}

func TestNewCache_Backends(t *testing.T) {
	c, err := NewCache(config.Cache{Enabled: false}, "", nil)
	require.NoError(t, err)
	require.IsType(t, cache.Noop{}, c)

	c, err = NewCache(config.Cache{Enabled: true, Backend: "redis", Addr: "redis://localhost:6379/0"}, "", nil)
	require.NoError(t, err)
	require.IsType(t, &cache.Lazy{}, c)

	_, err = NewCache(config.Cache{Enabled: true, Backend: "redis"}, "", nil)
	require.Error(t, err)

	_, err = NewCache(config.Cache{Enabled: true, Backend: "memcached"}, "", nil)
	require.Error(t, err)
}

func TestRedisURL_PrefersAddrOverSecret(t *testing.T) {
	secrets := &fakeSecrets{value: `{"redis":"redis://from-secret:6379/0"}`}

	url, err := redisURL("redis://explicit:6379/0", "pizza", secrets)(context.Background())
	require.NoError(t, err)
	require.Equal(t, "redis://explicit:6379/0", url)
	require.Equal(t, 0, secrets.calls)

	url, err = redisURL("", "pizza", secrets)(context.Background())
	require.NoError(t, err)
	require.Equal(t, "redis://from-secret:6379/0", url)
	require.Equal(t, 1, secrets.calls)
}
