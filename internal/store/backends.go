// Package store selects the persistence backends for the auth core from configuration.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"marketplace/internal/auth"
	"marketplace/internal/config"
	"marketplace/internal/obs"
	"marketplace/internal/store/memory"
	"marketplace/internal/store/pg"
	"marketplace/internal/store/redisstore"
)

// RBAC is the combined read and admin side of role configuration.
type RBAC interface {
	auth.RBACStore
	auth.RBACAdmin
}

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backends bundles the stores the auth components run on.
type Backends struct {
	Users       auth.UserStore
	Refresh     auth.RefreshTokenStore
	Revocations auth.RevocationRegistry
	RBAC        RBAC

	// Database and Cache are nil for in-memory backends.
	Database Pinger
	Cache    Pinger

	closers []func() error
}

// Open connects Postgres when PG_DSN is set and falls back to the in-memory store
// otherwise. REDIS_URL moves the access token blacklist to Redis.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	log := obs.Logger()
	b := &Backends{}

	if cfg.PostgresDSN != "" {
		db, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		b.Users, b.Refresh, b.Revocations, b.RBAC = db, db, db, db
		b.Database = db
		log.Info().Str("backend", "postgres").Msg("credential store ready")
	} else {
		if cfg.IsProduction() {
			return nil, errors.New("PG_DSN is required in production")
		}
		mem := memory.New()
		revocations := memory.NewRevocations(nil)
		b.closers = append(b.closers, func() error { revocations.Close(); return nil })
		b.Users, b.Refresh, b.Revocations, b.RBAC = mem, mem, revocations, mem
		log.Warn().Str("backend", "memory").Msg("PG_DSN not set; state is lost on restart")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		revocations := redisstore.NewRevocations(client, "", nil)
		if err := revocations.Ping(ctx); err != nil {
			_ = client.Close()
			_ = b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.Revocations = revocations
		b.Cache = revocations
		log.Info().Str("backend", "redis").Msg("revocation registry ready")
	}
	return b, nil
}

// Close releases connections in reverse order of acquisition.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
