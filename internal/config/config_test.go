package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		ServerAddr:   "localhost:8080",
		DatabaseDSN:  "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable",
		Store:        StorePostgres,
		StoreTimeout: time.Second,
		StoreRetries: 2,
		KafkaTopic:   "go-dm.messages",
	}
}

func TestConfig_Validate(t *testing.T) {
	tcases := []struct {
		name   string
		modify func(c *Config)
		err    bool
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:   "empty address",
			modify: func(c *Config) { c.ServerAddr = "" },
			err:    true,
		},
		{
			name:   "empty DSN",
			modify: func(c *Config) { c.DatabaseDSN = "" },
			err:    true,
		},
		{
			name:   "memory store without DSN",
			modify: func(c *Config) { c.Store = StoreMemory; c.DatabaseDSN = "" },
		},
		{
			name:   "unknown store",
			modify: func(c *Config) { c.Store = "sqlite" },
			err:    true,
		},
		{
			name:   "zero timeout",
			modify: func(c *Config) { c.StoreTimeout = 0 },
			err:    true,
		},
		{
			name:   "negative retries",
			modify: func(c *Config) { c.StoreRetries = -1 },
			err:    true,
		},
		{
			name:   "brokers without topic",
			modify: func(c *Config) { c.KafkaBrokers = []string{"localhost:9092"}; c.KafkaTopic = "" },
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(&cfg)

			err := cfg.Validate()
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)
		})
	}
}

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "localhost:8000", cfg.ServerAddr)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.True(t, cfg.MigrateOnStart)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 2, cfg.StoreRetries)
	assert.Equal(t, "go-dm.messages", cfg.KafkaTopic)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_environment(t *testing.T) {
	t.Setenv("GODM_ADDR", ":9000")
	t.Setenv("GODM_STORE", "memory")
	t.Setenv("GODM_ALLOWED_ORIGINS", "http://localhost:3000,http://example.com")
	t.Setenv("GODM_STORE_TIMEOUT", "250ms")
	t.Setenv("GODM_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, []string{"http://localhost:3000", "http://example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_envFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GODM_REDIS_ADDR=localhost:6379\nGODM_STORE_RETRIES=5\n"), 0o600))

	// godotenv does not override variables that are already set.
	t.Setenv("GODM_STORE_RETRIES", "1")
	t.Cleanup(func() { os.Unsetenv("GODM_REDIS_ADDR") })

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 1, cfg.StoreRetries)
}

func TestLoad_invalidEnvironment(t *testing.T) {
	t.Setenv("GODM_STORE_RETRIES", "many")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
