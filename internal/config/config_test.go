package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "0 3 * * *", cfg.ReindexCron)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.False(t, cfg.StorageEnabled())
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WISDOM_ADDR", ":9000")
	t.Setenv("WISDOM_ACCESS_TTL", "5m")
	t.Setenv("WISDOM_MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("WISDOM_RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.True(t, cfg.StorageEnabled())
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 0.001)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("WISDOM_OUTBOX_BATCH", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("WISDOM_OUTBOX_BATCH", "10")
	t.Setenv("WISDOM_ACCESS_TTL", "not-a-duration")
	_, err = Load()
	assert.Error(t, err)
}
