package memory

import (
	"context"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"marketplace/internal/auth"
)

// Revocations is an in-process revocation registry. Entries expire with the access
// token they revoke; entries of unknown lifetime stay until purged.
type Revocations struct {
	cache *ttlcache.Cache[string, auth.RevocationEntry]
	now   func() time.Time
}

// NewRevocations starts the cache cleanup loop; call Close to stop it. now may be
// nil to use the wall clock.
func NewRevocations(now func() time.Time) *Revocations {
	if now == nil {
		now = time.Now
	}
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, auth.RevocationEntry](),
	)
	go cache.Start()
	return &Revocations{cache: cache, now: now}
}

func (r *Revocations) RevokeAccessToken(ctx context.Context, entry auth.RevocationEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry.JTI = strings.TrimSpace(entry.JTI)
	if entry.JTI == "" {
		return auth.ErrInvalidInput
	}
	if r.cache.Has(entry.JTI) {
		return nil
	}
	ttl := ttlcache.NoTTL
	if !entry.ExpiresAt.IsZero() {
		if remaining := entry.ExpiresAt.Sub(r.now()); remaining > 0 {
			ttl = remaining
		}
	}
	r.cache.Set(entry.JTI, entry, ttl)
	return nil
}

func (r *Revocations) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.cache.Has(jti), nil
}

// RevocationReason returns the reason recorded with a live entry.
func (r *Revocations) RevocationReason(ctx context.Context, jti string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	item := r.cache.Get(jti)
	if item == nil {
		return "", auth.ErrNotFound
	}
	return item.Value().Reason, nil
}

func (r *Revocations) PurgeRevocations(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for jti, item := range r.cache.Items() {
		entry := item.Value()
		if !entry.ExpiresAt.IsZero() && entry.ExpiresAt.Before(now) {
			r.cache.Delete(jti)
			n++
		}
	}
	r.cache.DeleteExpired()
	return n, nil
}

// Close stops the cleanup goroutine.
func (r *Revocations) Close() {
	r.cache.Stop()
}
