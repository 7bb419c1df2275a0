// Package redisstore keeps the access token blacklist in Redis so every API node
// sees a revocation as soon as it is acknowledged.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace/internal/auth"
)

const defaultPrefix = "marketplace"

// Revocations implements auth.RevocationRegistry on top of Redis keys with TTLs.
type Revocations struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRevocations wraps client. prefix namespaces keys; now may be nil.
func NewRevocations(client redis.Cmdable, prefix string, now func() time.Time) *Revocations {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &Revocations{client: client, prefix: prefix, now: now}
}

func (r *Revocations) key(jti string) string {
	return fmt.Sprintf("%s:jwt_blacklist:%s", r.prefix, jti)
}

// RevokeAccessToken stores the jti until the token's own expiry. Entries without a
// known future expiry are kept without TTL. The first reason recorded wins.
func (r *Revocations) RevokeAccessToken(ctx context.Context, entry auth.RevocationEntry) error {
	jti := strings.TrimSpace(entry.JTI)
	if jti == "" {
		return auth.ErrInvalidInput
	}
	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		if remaining := entry.ExpiresAt.Sub(r.now()); remaining > 0 {
			ttl = remaining
		}
	}
	reason := entry.Reason
	if reason == "" {
		reason = "revoked"
	}
	if err := r.client.SetNX(ctx, r.key(jti), reason, ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

func (r *Revocations) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// RevocationReason returns the reason recorded for jti.
func (r *Revocations) RevocationReason(ctx context.Context, jti string) (string, error) {
	reason, err := r.client.Get(ctx, r.key(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return reason, nil
}

// PurgeRevocations is a no-op: Redis expires entries through their key TTL.
func (r *Revocations) PurgeRevocations(ctx context.Context, _ time.Time) (int64, error) {
	return 0, ctx.Err()
}

// Ping reports whether Redis is reachable.
func (r *Revocations) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
