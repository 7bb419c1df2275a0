package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/config"
	"marketplace/internal/obs"
	"marketplace/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	obs.SetLevel(cfg.LogLevel)
	log := obs.Logger().With().Str("component", "auth-cleanup").Logger()

	if cfg.PostgresDSN == "" {
		log.Fatal().Msg("PG_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	backends, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores")
	}
	defer backends.Close()

	janitor, err := auth.NewJanitor(backends.Refresh, backends.Revocations, cfg.PurgeRetention,
		auth.WithStoreTimeout(cfg.StoreTimeout))
	if err != nil {
		log.Fatal().Err(err).Msg("build janitor")
	}
	res, err := janitor.Purge(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("auth cleanup failed")
	}
	log.Info().
		Int64("refresh_tokens", res.RefreshTokens).
		Int64("revocations", res.Revocations).
		Msg("auth cleanup completed")
}
