// Package awsx loads AWS SDK configuration for the job's clients.
package awsx

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Clients groups the AWS service clients used by a run.
type Clients struct {
	S3             *s3.Client
	SecretsManager *secretsmanager.Client
}

// Load reads the default credential chain pinned to region.
func Load(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("platform/awsx: load config: %w", err)
	}
	return cfg, nil
}

// NewClients builds fresh service clients for region.
func NewClients(ctx context.Context, region string) (Clients, error) {
	cfg, err := Load(ctx, region)
	if err != nil {
		return Clients{}, err
	}
	return Clients{
		S3:             s3.NewFromConfig(cfg),
		SecretsManager: secretsmanager.NewFromConfig(cfg),
	}, nil
}
