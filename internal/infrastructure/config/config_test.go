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
		"SELLERBRIDGE_APP_NAME":                  os.Getenv("SELLERBRIDGE_APP_NAME"),
		"SELLERBRIDGE_APP_ENV":                   os.Getenv("SELLERBRIDGE_APP_ENV"),
		"SELLERBRIDGE_APP_PORT":                  os.Getenv("SELLERBRIDGE_APP_PORT"),
		"SELLERBRIDGE_DATABASE_HOST":             os.Getenv("SELLERBRIDGE_DATABASE_HOST"),
		"SELLERBRIDGE_DATABASE_PORT":             os.Getenv("SELLERBRIDGE_DATABASE_PORT"),
		"SELLERBRIDGE_DATABASE_USER":             os.Getenv("SELLERBRIDGE_DATABASE_USER"),
		"SELLERBRIDGE_DATABASE_PASSWORD":         os.Getenv("SELLERBRIDGE_DATABASE_PASSWORD"),
		"SELLERBRIDGE_DATABASE_DBNAME":           os.Getenv("SELLERBRIDGE_DATABASE_DBNAME"),
		"SELLERBRIDGE_DATABASE_SSLMODE":          os.Getenv("SELLERBRIDGE_DATABASE_SSLMODE"),
		"SELLERBRIDGE_DATABASE_MAX_OPEN_CONNS":   os.Getenv("SELLERBRIDGE_DATABASE_MAX_OPEN_CONNS"),
		"SELLERBRIDGE_DATABASE_MAX_IDLE_CONNS":   os.Getenv("SELLERBRIDGE_DATABASE_MAX_IDLE_CONNS"),
		"SELLERBRIDGE_SYNC_PAGE_SIZE":            os.Getenv("SELLERBRIDGE_SYNC_PAGE_SIZE"),
		"SELLERBRIDGE_SYNC_TIMEOUT":              os.Getenv("SELLERBRIDGE_SYNC_TIMEOUT"),
		"SELLERBRIDGE_SYNC_REAPER_AGE":           os.Getenv("SELLERBRIDGE_SYNC_REAPER_AGE"),
		"SELLERBRIDGE_MARKETPLACE_MAIN_USERNAME": os.Getenv("SELLERBRIDGE_MARKETPLACE_MAIN_USERNAME"),
		"SELLERBRIDGE_MARKETPLACE_FBE_USERNAME":  os.Getenv("SELLERBRIDGE_MARKETPLACE_FBE_USERNAME"),
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

		assert.Equal(t, "sellerbridge", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "sellerbridge", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
	})

	t.Run("loads values from environment variables with SELLERBRIDGE prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("SELLERBRIDGE_APP_NAME", "test-app")
		os.Setenv("SELLERBRIDGE_APP_ENV", "testing")
		os.Setenv("SELLERBRIDGE_APP_PORT", "9000")
		os.Setenv("SELLERBRIDGE_DATABASE_HOST", "testdb.local")
		os.Setenv("SELLERBRIDGE_DATABASE_PORT", "5433")
		os.Setenv("SELLERBRIDGE_DATABASE_USER", "testuser")
		os.Setenv("SELLERBRIDGE_DATABASE_PASSWORD", "testpass")
		os.Setenv("SELLERBRIDGE_DATABASE_DBNAME", "testdb")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testuser", cfg.Database.User)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, "testdb", cfg.Database.DBName)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("SELLERBRIDGE_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("SELLERBRIDGE_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rate limit classes get default budgets", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		orders, ok := cfg.RateLimit.Classes["orders"]
		require.True(t, ok)
		assert.Equal(t, 12, orders.PerSecond)
		assert.Equal(t, 720, orders.PerMinute)

		other, ok := cfg.RateLimit.Classes["other"]
		require.True(t, ok)
		assert.Equal(t, 3, other.PerSecond)
		assert.Equal(t, 180, other.PerMinute)
	})

	t.Run("sync defaults are applied", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 100, cfg.Sync.PageSize)
		assert.Equal(t, 600*time.Second, cfg.Sync.Timeout)
		assert.Equal(t, 900*time.Second, cfg.Sync.MaxTimeout)
		assert.Equal(t, 100, cfg.Sync.OrderBatchSize)
		assert.GreaterOrEqual(t, cfg.Sync.ReaperAge, 2*cfg.Sync.Timeout)
	})

	t.Run("rejects page size above the remote maximum", func(t *testing.T) {
		clearEnv()
		os.Setenv("SELLERBRIDGE_SYNC_PAGE_SIZE", "250")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.page_size")
	})

	t.Run("rejects timeout above the ceiling", func(t *testing.T) {
		clearEnv()
		os.Setenv("SELLERBRIDGE_SYNC_TIMEOUT", "1200s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed sync.max_timeout")
	})

	t.Run("rejects reaper age below twice the timeout", func(t *testing.T) {
		clearEnv()
		os.Setenv("SELLERBRIDGE_SYNC_REAPER_AGE", "700s")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reaper_age")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	originalEnv := map[string]string{
		"SELLERBRIDGE_APP_ENV":                   os.Getenv("SELLERBRIDGE_APP_ENV"),
		"SELLERBRIDGE_DATABASE_PASSWORD":         os.Getenv("SELLERBRIDGE_DATABASE_PASSWORD"),
		"SELLERBRIDGE_DATABASE_SSLMODE":          os.Getenv("SELLERBRIDGE_DATABASE_SSLMODE"),
		"SELLERBRIDGE_MARKETPLACE_MAIN_USERNAME": os.Getenv("SELLERBRIDGE_MARKETPLACE_MAIN_USERNAME"),
		"SELLERBRIDGE_MARKETPLACE_FBE_USERNAME":  os.Getenv("SELLERBRIDGE_MARKETPLACE_FBE_USERNAME"),
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

	setValidProductionBase := func() {
		os.Setenv("SELLERBRIDGE_APP_ENV", "production")
		os.Setenv("SELLERBRIDGE_DATABASE_PASSWORD", "secure-password")
		os.Setenv("SELLERBRIDGE_DATABASE_SSLMODE", "require")
		os.Setenv("SELLERBRIDGE_MARKETPLACE_MAIN_USERNAME", "main@seller.example")
		os.Setenv("SELLERBRIDGE_MARKETPLACE_FBE_USERNAME", "fbe@seller.example")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("SELLERBRIDGE_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Setenv("SELLERBRIDGE_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("requires credentials for both seller accounts in production", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()
		os.Unsetenv("SELLERBRIDGE_MARKETPLACE_FBE_USERNAME")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "marketplace credentials")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearEnv()
		setValidProductionBase()

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		// URL-encoded password should be in the DSN
		assert.Contains(t, dsn, "pass%40word%23123")
	})

	t.Run("handles empty password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.NotEmpty(t, dsn)
	})
}
