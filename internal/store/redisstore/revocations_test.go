package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"marketplace/internal/auth"
)

func newTestRegistry(t *testing.T, now time.Time) (*Revocations, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRevocations(client, "test", func() time.Time { return now }), mr
}

func TestRevokeAccessTokenSetsTTL(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	reg, mr := newTestRegistry(t, now)
	ctx := context.Background()

	err := reg.RevokeAccessToken(ctx, auth.RevocationEntry{
		JTI:       "jti-1",
		Reason:    "logout",
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	})
	require.NoError(t, err)

	revoked, err := reg.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)
	require.Equal(t, 10*time.Minute, mr.TTL("test:jwt_blacklist:jti-1"))

	mr.FastForward(10*time.Minute + time.Second)
	revoked, err = reg.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevokeAccessTokenIsIdempotent(t *testing.T) {
	now := time.Now()
	reg, _ := newTestRegistry(t, now)
	ctx := context.Background()

	entry := auth.RevocationEntry{JTI: "jti-2", Reason: "logout", ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, reg.RevokeAccessToken(ctx, entry))
	entry.Reason = "deactivated"
	require.NoError(t, reg.RevokeAccessToken(ctx, entry))

	reason, err := reg.RevocationReason(ctx, "jti-2")
	require.NoError(t, err)
	require.Equal(t, "logout", reason)
}

func TestRevokeWithoutExpiryPersists(t *testing.T) {
	reg, mr := newTestRegistry(t, time.Now())
	ctx := context.Background()

	require.NoError(t, reg.RevokeAccessToken(ctx, auth.RevocationEntry{JTI: "jti-3"}))
	require.Equal(t, time.Duration(0), mr.TTL("test:jwt_blacklist:jti-3"))

	_, err := reg.RevocationReason(ctx, "unknown")
	require.ErrorIs(t, err, auth.ErrNotFound)
	require.ErrorIs(t, reg.RevokeAccessToken(ctx, auth.RevocationEntry{JTI: " "}), auth.ErrInvalidInput)
}

func TestRedisUnavailableIsAnError(t *testing.T) {
	reg, mr := newTestRegistry(t, time.Now())
	mr.Close()

	_, err := reg.IsAccessTokenRevoked(context.Background(), "jti-4")
	require.Error(t, err)
	require.Error(t, reg.Ping(context.Background()))
}
