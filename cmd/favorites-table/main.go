// Command favorites-table creates the favorites table and its GSI1 index if
// they do not exist. It is meant for DynamoDB Local and development stacks.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jacentio/favorites/config"
	"github.com/jacentio/favorites/internal/ddbclient"
	"github.com/jacentio/favorites/internal/logger"
	"github.com/jacentio/favorites/store"
)

func main() {
	_ = godotenv.Load()

	timeout := flag.Duration("timeout", 2*time.Minute, "how long to wait for the table to become active")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logg, err := logger.New(cfg.App.LogLevel, cfg.App.IsDev())
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+30*time.Second)
	defer cancel()

	client, err := ddbclient.New(ctx, ddbclient.Options{
		Region:   cfg.DynamoDB.Region,
		LocalURL: cfg.DynamoDB.LocalURL,
	})
	if err != nil {
		logg.Fatal("failed to create DynamoDB client", zap.Error(err))
	}

	storeCfg := cfg.Store()
	if err := store.EnsureTable(ctx, client, storeCfg, *timeout); err != nil {
		logg.Error("failed to ensure table",
			zap.String("table", storeCfg.TableName),
			zap.String("code", store.ErrorCode(err)),
			zap.Error(err),
		)
		_ = logg.Sync()
		os.Exit(1)
	}

	logg.Info("favorites table ready",
		zap.String("table", storeCfg.TableName),
		zap.String("index", storeCfg.IndexName),
	)
}
