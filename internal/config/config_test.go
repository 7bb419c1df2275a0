package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, name := range []string{"APP_ENV", "HTTP_ADDR", "AUTH_SECRET", "ACCESS_TTL", "REFRESH_TTL", "STORE_TIMEOUT", "PURGE_INTERVAL", "PURGE_RETENTION", "REFRESH_REUSE_DETECTION", "REFRESH_REUSE_GRACE", "PG_DSN", "REDIS_URL"} {
		t.Setenv(name, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 3*time.Second, cfg.StoreTimeout)
	require.True(t, cfg.ReuseDetection)
	require.Equal(t, 10*time.Second, cfg.ReuseGrace)
	require.False(t, cfg.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "Prod")
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("PG_DSN", "postgres://localhost/market")
	t.Setenv("STORE_TIMEOUT", "500ms")
	t.Setenv("REFRESH_REUSE_DETECTION", "off")
	t.Setenv("REFRESH_REUSE_GRACE", "2s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 500*time.Millisecond, cfg.StoreTimeout)
	require.False(t, cfg.ReuseDetection)
	require.Equal(t, 2*time.Second, cfg.ReuseGrace)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("ACCESS_TTL", "soon")
	_, err := FromEnv()
	require.ErrorContains(t, err, "ACCESS_TTL")

	t.Setenv("ACCESS_TTL", "0s")
	_, err = FromEnv()
	require.ErrorContains(t, err, "ACCESS_TTL must be > 0")

	t.Setenv("ACCESS_TTL", "15m")
	t.Setenv("REFRESH_REUSE_GRACE", "-1s")
	_, err = FromEnv()
	require.ErrorContains(t, err, "REFRESH_REUSE_GRACE must be >= 0")
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("PG_DSN", "postgres://localhost/market")
	_, err := FromEnv()
	require.ErrorContains(t, err, "AUTH_SECRET")
}
