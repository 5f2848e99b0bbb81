// Package config loads the favorites runtime configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/jacentio/favorites/service"
	"github.com/jacentio/favorites/store"
)

// Environment names.
const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Config is the process configuration. It is read once at start-up.
type Config struct {
	App       AppConfig
	DynamoDB  DynamoDBConfig
	Favorites FavoritesConfig
}

type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DynamoDBConfig struct {
	Region    string `envconfig:"AWS_REGION" default:"us-east-1"`
	TableName string `envconfig:"FAVORITES_TABLE_NAME" required:"true"`
	IndexName string `envconfig:"FAVORITES_INDEX_NAME" default:"GSI1"`

	// LocalURL points the client at DynamoDB Local instead of AWS.
	LocalURL string `envconfig:"DYNAMODB_LOCAL_URL"`
}

type FavoritesConfig struct {
	MaxPerUser int `envconfig:"FAVORITES_MAX_PER_USER" default:"1000"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Favorites.MaxPerUser <= 0 {
		return nil, fmt.Errorf("FAVORITES_MAX_PER_USER must be positive, got %d", cfg.Favorites.MaxPerUser)
	}
	return &cfg, nil
}

// Store returns the store settings.
func (c *Config) Store() store.Config {
	return store.Config{
		TableName: c.DynamoDB.TableName,
		IndexName: c.DynamoDB.IndexName,
	}
}

// Service returns the service settings. The service package has no binary of
// its own; the API process that embeds it builds it from this.
func (c *Config) Service() service.Config {
	return service.Config{
		MaxPerUser: c.Favorites.MaxPerUser,
	}
}
