// Command favorites-stream is the Lambda function attached to the favorites
// table stream. It removes uniqueness markers left behind by favorites that
// were deleted outside the store.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jacentio/favorites/config"
	"github.com/jacentio/favorites/internal/ddbclient"
	"github.com/jacentio/favorites/internal/logger"
	"github.com/jacentio/favorites/store"
	"github.com/jacentio/favorites/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logg, err := logger.New(cfg.App.LogLevel, cfg.App.IsDev())
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	client, err := ddbclient.New(context.Background(), ddbclient.Options{
		Region:   cfg.DynamoDB.Region,
		LocalURL: cfg.DynamoDB.LocalURL,
	})
	if err != nil {
		logg.Fatal("failed to create DynamoDB client", zap.Error(err))
	}

	handler := stream.NewHandler(store.New(client, cfg.Store()), logg.Named("stream"))

	logg.Info("favorites stream handler ready",
		zap.String("table", cfg.DynamoDB.TableName),
		zap.String("env", cfg.App.Env),
	)
	lambda.Start(handler.HandleMarkerCleanup)
}
