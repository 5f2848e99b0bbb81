// Package ddbclient creates DynamoDB clients for AWS or DynamoDB Local.
package ddbclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Options selects the client target.
type Options struct {
	Region string

	// LocalURL, if set, sends requests to DynamoDB Local with static
	// credentials instead of the default AWS credential chain.
	LocalURL string
}

// LoadAWSConfig resolves the AWS configuration for opts.
func LoadAWSConfig(ctx context.Context, opts Options) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.LocalURL != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

// New creates a DynamoDB client for opts.
func New(ctx context.Context, opts Options) (*dynamodb.Client, error) {
	cfg, err := LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.LocalURL != "" {
			o.BaseEndpoint = aws.String(opts.LocalURL)
		}
	}), nil
}
