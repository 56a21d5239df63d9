package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("NODE_ID", "node-a")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
	assert.Empty(t, cfg.RedisURL)
	assert.Contains(t, cfg.CORSOrigins, "http://localhost:5173")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("HTTP_PORT", "9001")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("CORS_ORIGINS", "https://art.example, https://admin.art.example")
	t.Setenv("MESSAGE_PAGE_LIMIT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, []string{"https://art.example", "https://admin.art.example"}, cfg.CORSOrigins)
	assert.Equal(t, 200, cfg.MessagePageLimit)
}

func TestLoadRejects(t *testing.T) {
	t.Run("MissingSecret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		assert.ErrorContains(t, err, "JWT_SECRET")
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "x")
		t.Setenv("DB_DRIVER", "mongo")
		_, err := Load()
		assert.ErrorContains(t, err, "DB_DRIVER")
	})
}
