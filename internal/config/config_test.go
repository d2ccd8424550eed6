package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/concierge")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 5*time.Second, cfg.WorkerPollInterval)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/concierge")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ENV", "production")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 8, cfg.WorkerConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.WorkerPollInterval)
	assert.Equal(t, "sk_test", cfg.StripeSecretKey)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
