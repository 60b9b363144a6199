package telemetry

import (
	"context"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/pizza-tracker/internal/aws"
)

// PutMetricData accepts at most 1000 datums per call.
const maxDatumsPerCall = 1000

// CloudWatch buffers datums and publishes them with PutMetricData on Flush.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	service   string
	log       *zap.Logger
	nowFunc   func() time.Time

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace, service string, log *zap.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		service:   service,
		log:       log,
		nowFunc:   time.Now,
	}
}

func (c *CloudWatch) Latency(name string, d time.Duration) {
	c.add(name, float64(d)/float64(time.Millisecond), cwtypes.StandardUnitMilliseconds)
}

func (c *CloudWatch) Count(name string, n float64) {
	c.add(name, n, cwtypes.StandardUnitCount)
}

func (c *CloudWatch) add(name string, value float64, unit cwtypes.StandardUnit) {
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Value:      sdkaws.Float64(value),
		Unit:       unit,
		Timestamp:  sdkaws.Time(c.nowFunc()),
		Dimensions: []cwtypes.Dimension{
			{Name: sdkaws.String("service"), Value: sdkaws.String(c.service)},
		},
	}
	c.mu.Lock()
	c.pending = append(c.pending, datum)
	c.mu.Unlock()
}

func (c *CloudWatch) Flush(ctx context.Context) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for start := 0; start < len(pending); start += maxDatumsPerCall {
		end := start + maxDatumsPerCall
		if end > len(pending) {
			end = len(pending)
		}
		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  sdkaws.String(c.namespace),
			MetricData: pending[start:end],
		})
		if err != nil {
			c.log.Warn("publish metrics", zap.Int("datums", end-start), zap.Error(err))
		}
	}
}
