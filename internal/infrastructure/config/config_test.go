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
		"FINTRACK_APP_NAME":                 os.Getenv("FINTRACK_APP_NAME"),
		"FINTRACK_APP_ENV":                  os.Getenv("FINTRACK_APP_ENV"),
		"FINTRACK_APP_PORT":                 os.Getenv("FINTRACK_APP_PORT"),
		"FINTRACK_DATABASE_HOST":            os.Getenv("FINTRACK_DATABASE_HOST"),
		"FINTRACK_DATABASE_PORT":            os.Getenv("FINTRACK_DATABASE_PORT"),
		"FINTRACK_DATABASE_PASSWORD":        os.Getenv("FINTRACK_DATABASE_PASSWORD"),
		"FINTRACK_DATABASE_SSLMODE":         os.Getenv("FINTRACK_DATABASE_SSLMODE"),
		"FINTRACK_DATABASE_MAX_OPEN_CONNS":  os.Getenv("FINTRACK_DATABASE_MAX_OPEN_CONNS"),
		"FINTRACK_DATABASE_MAX_IDLE_CONNS":  os.Getenv("FINTRACK_DATABASE_MAX_IDLE_CONNS"),
		"FINTRACK_SYNC_TIMEOUT":             os.Getenv("FINTRACK_SYNC_TIMEOUT"),
		"FINTRACK_SYNC_LOCK_TTL":            os.Getenv("FINTRACK_SYNC_LOCK_TTL"),
		"FINTRACK_BANKING_SALTEDGE_ENABLED": os.Getenv("FINTRACK_BANKING_SALTEDGE_ENABLED"),
		"FINTRACK_BANKING_SALTEDGE_APP_ID":  os.Getenv("FINTRACK_BANKING_SALTEDGE_APP_ID"),
		"FINTRACK_BANKING_SALTEDGE_SECRET":  os.Getenv("FINTRACK_BANKING_SALTEDGE_SECRET"),
		"FINTRACK_BANKING_SANDBOX_ENABLED":  os.Getenv("FINTRACK_BANKING_SANDBOX_ENABLED"),
		"FINTRACK_JWT_SECRET":               os.Getenv("FINTRACK_JWT_SECRET"),
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

		assert.Equal(t, "fintrack-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "fintrack", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)

		assert.Equal(t, 5*time.Minute, cfg.Sync.Timeout)
		assert.Equal(t, 6*time.Minute, cfg.Sync.LockTTL)
		assert.Equal(t, 72*time.Hour, cfg.Sync.LookbackOverlap)
		assert.Equal(t, 90*24*time.Hour, cfg.Sync.InitialLookback)
		assert.Equal(t, 24*time.Hour, cfg.Sweep.PendingWindow)
		assert.Equal(t, 100, cfg.Sweep.BatchSize)
		assert.Equal(t, "https://www.saltedge.com/api/v6", cfg.Banking.SaltEdge.BaseURL)
	})

	t.Run("loads values from environment variables with FINTRACK prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("FINTRACK_APP_NAME", "test-app")
		os.Setenv("FINTRACK_APP_PORT", "9000")
		os.Setenv("FINTRACK_DATABASE_HOST", "testdb.local")
		os.Setenv("FINTRACK_DATABASE_PORT", "5433")
		os.Setenv("FINTRACK_SYNC_TIMEOUT", "2m")
		os.Setenv("FINTRACK_SYNC_LOCK_TTL", "3m")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 2*time.Minute, cfg.Sync.Timeout)
		assert.Equal(t, 3*time.Minute, cfg.Sync.LockTTL)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("FINTRACK_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("FINTRACK_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates lock TTL must exceed sync timeout", func(t *testing.T) {
		clearEnv()
		os.Setenv("FINTRACK_SYNC_TIMEOUT", "5m")
		os.Setenv("FINTRACK_SYNC_LOCK_TTL", "5m")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock_ttl")
	})

	t.Run("validates saltedge credentials when enabled", func(t *testing.T) {
		clearEnv()
		os.Setenv("FINTRACK_BANKING_SALTEDGE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "saltedge")

		os.Setenv("FINTRACK_BANKING_SALTEDGE_APP_ID", "app-id")
		os.Setenv("FINTRACK_BANKING_SALTEDGE_SECRET", "app-secret")
		_, err = Load()
		require.NoError(t, err)
	})

	t.Run("production requires secrets and forbids sandbox", func(t *testing.T) {
		clearEnv()
		os.Setenv("FINTRACK_APP_ENV", "production")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret")

		os.Setenv("FINTRACK_JWT_SECRET", "0123456789abcdef0123456789abcdef")
		os.Setenv("FINTRACK_DATABASE_PASSWORD", "secret")
		os.Setenv("FINTRACK_DATABASE_SSLMODE", "require")
		os.Setenv("FINTRACK_BANKING_SANDBOX_ENABLED", "true")

		_, err = Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sandbox")
	})
}

func TestDatabaseConfigDSN(t *testing.T) {
	t.Run("builds postgres DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host: "db.local", Port: 5432,
			User: "app", Password: "s3cret",
			DBName: "fintrack", SSLMode: "require",
		}
		dsn := cfg.DSN()
		assert.Contains(t, dsn, "postgres://")
		assert.Contains(t, dsn, "db.local:5432")
		assert.Contains(t, dsn, "sslmode=require")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host: "localhost", Port: 5432,
			User: "app", Password: "p@ss/word",
			DBName: "fintrack", SSLMode: "disable",
		}
		dsn := cfg.DSN()
		assert.NotContains(t, dsn, "p@ss/word")
	})
}
