package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "GODM"

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is read from GODM_* environment variables, optionally declared in
// a .env file. Command-line flags may override it before Validate.
type Config struct {
	ServerAddr     string        `envconfig:"ADDR" default:"localhost:8000"`
	DatabaseDSN    string        `envconfig:"DSN" default:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	Store          string        `envconfig:"STORE" default:"postgres"`
	MigrateOnStart bool          `envconfig:"MIGRATE" default:"true"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS"`
	StoreTimeout   time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	StoreRetries   int           `envconfig:"STORE_RETRIES" default:"2"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	KafkaBrokers   []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic     string        `envconfig:"KAFKA_TOPIC" default:"go-dm.messages"`
}

func Load(envFiles ...string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	switch c.Store {
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database DSN cannot be empty")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q, expected %q or %q", c.Store, StorePostgres, StoreMemory)
	}

	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	if c.StoreRetries < 0 {
		return fmt.Errorf("store retries cannot be negative")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka topic cannot be empty when brokers are set")
	}

	return nil
}
