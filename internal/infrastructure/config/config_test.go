package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"SYNC_APP_NAME":          os.Getenv("SYNC_APP_NAME"),
		"SYNC_APP_ENV":           os.Getenv("SYNC_APP_ENV"),
		"SYNC_APP_PORT":          os.Getenv("SYNC_APP_PORT"),
		"SYNC_DATABASE_HOST":     os.Getenv("SYNC_DATABASE_HOST"),
		"SYNC_DATABASE_PORT":     os.Getenv("SYNC_DATABASE_PORT"),
		"SYNC_DATABASE_USER":     os.Getenv("SYNC_DATABASE_USER"),
		"SYNC_DATABASE_PASSWORD": os.Getenv("SYNC_DATABASE_PASSWORD"),
		"SYNC_DATABASE_DBNAME":   os.Getenv("SYNC_DATABASE_DBNAME"),
		"SYNC_DATABASE_SSLMODE":  os.Getenv("SYNC_DATABASE_SSLMODE"),
		"SYNC_SECRETS_BASE_URL":  os.Getenv("SYNC_SECRETS_BASE_URL"),
		"SYNC_SECRETS_TOKEN":     os.Getenv("SYNC_SECRETS_TOKEN"),
		"SYNC_ERP_BASE_URL":      os.Getenv("SYNC_ERP_BASE_URL"),
		"SYNC_RETRY_MAX_BACKOFF": os.Getenv("SYNC_RETRY_MAX_BACKOFF"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "sync-engine", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "sync", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, time.Second, cfg.Dispatcher.PollInterval)
		assert.Equal(t, 100, cfg.Dispatcher.BatchSize)
		assert.Equal(t, 8, cfg.Retry.MaxAttempts)
		assert.Equal(t, time.Second, cfg.Retry.BaseBackoff)
		assert.Equal(t, 5*time.Minute, cfg.Retry.MaxBackoff)
		assert.Equal(t, "dead-letters", cfg.Storage.Prefix)
	})

	t.Run("loads values from environment variables with SYNC prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("SYNC_APP_NAME", "sync-test")
		os.Setenv("SYNC_APP_PORT", "9000")
		os.Setenv("SYNC_DATABASE_HOST", "testdb.local")
		os.Setenv("SYNC_DATABASE_PORT", "5433")
		os.Setenv("SYNC_SECRETS_BASE_URL", "https://secrets.local")
		os.Setenv("SYNC_ERP_BASE_URL", "https://odoo.local")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "sync-test", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "https://secrets.local", cfg.Secrets.BaseURL)
		assert.Equal(t, "https://odoo.local", cfg.ERP.BaseURL)
	})

	t.Run("production requires hardened settings", func(t *testing.T) {
		clearEnv()
		os.Setenv("SYNC_APP_ENV", "production")

		_, err := Load()
		require.Error(t, err)

		os.Setenv("SYNC_DATABASE_PASSWORD", "s3cret")
		os.Setenv("SYNC_DATABASE_SSLMODE", "require")
		os.Setenv("SYNC_SECRETS_BASE_URL", "https://secrets.local")
		os.Setenv("SYNC_SECRETS_TOKEN", "tok")
		os.Setenv("SYNC_ERP_BASE_URL", "https://odoo.local")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("rejects inverted backoff bounds", func(t *testing.T) {
		clearEnv()
		os.Setenv("SYNC_RETRY_MAX_BACKOFF", "1ms")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "db.local",
		Port:     5432,
		User:     "sync",
		Password: "p@ss/word",
		DBName:   "events",
		SSLMode:  "require",
	}
	dsn := cfg.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "db.local:5432")
	assert.Contains(t, dsn, "sslmode=require")
	assert.NotContains(t, dsn, "p@ss/word")
}
