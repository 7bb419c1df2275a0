package auth

import (
	"context"
	"errors"
	"time"
)

// PurgeResult reports how many rows a purge removed.
type PurgeResult struct {
	RefreshTokens int64
	Revocations   int64
}

// Janitor removes rows that can no longer affect any check. Expiry is still enforced
// at check time; purging only bounds table growth.
type Janitor struct {
	refresh     RefreshTokenStore
	revocations RevocationRegistry
	retention   time.Duration
	s           settings
}

// NewJanitor keeps dead refresh rows for retention after their expiry so reuse
// detection and audits can still see them.
func NewJanitor(refresh RefreshTokenStore, revocations RevocationRegistry, retention time.Duration, opts ...Option) (*Janitor, error) {
	if refresh == nil || revocations == nil {
		return nil, errors.New("auth: janitor requires refresh and revocation stores")
	}
	if retention < 0 {
		return nil, errors.New("auth: retention must not be negative")
	}
	s, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Janitor{refresh: refresh, revocations: revocations, retention: retention, s: s}, nil
}

// Purge deletes refresh rows expired before now-retention and revocation entries
// whose access token has itself expired.
func (j *Janitor) Purge(ctx context.Context) (PurgeResult, error) {
	now := j.s.now().UTC()
	var res PurgeResult
	if err := j.s.storeCall(ctx, "purge_refresh_tokens", func(ctx context.Context) error {
		var err error
		res.RefreshTokens, err = j.refresh.PurgeRefreshTokens(ctx, now.Add(-j.retention))
		return err
	}); err != nil {
		return res, err
	}
	if err := j.s.storeCall(ctx, "purge_revocations", func(ctx context.Context) error {
		var err error
		res.Revocations, err = j.revocations.PurgeRevocations(ctx, now)
		return err
	}); err != nil {
		return res, err
	}
	return res, nil
}

// Run purges every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := j.Purge(ctx)
			if err != nil {
				j.s.log.Error().Err(err).Msg("purge failed")
				continue
			}
			j.s.log.Info().
				Int64("refresh_tokens", res.RefreshTokens).
				Int64("revocations", res.Revocations).
				Msg("purged expired auth rows")
		}
	}
}
