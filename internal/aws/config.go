package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Options selects where the order service's AWS clients point.
type Options struct {
	Region string
	// Endpoint overrides every service endpoint, e.g. a LocalStack URL for
	// running the API and projector off-cloud.
	Endpoint string
	// MaxAttempts bounds SDK retries so a throttled table surfaces within one
	// Lambda invocation. Zero keeps the SDK default.
	MaxAttempts int
}

// LoadConfig resolves the shared AWS config for opts.
func LoadConfig(ctx context.Context, opts Options) (sdkaws.Config, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if opts.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(opts.Endpoint))
	}
	if opts.MaxAttempts > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(opts.MaxAttempts))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return cfg, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
