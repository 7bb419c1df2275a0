package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/config"
	"marketplace/internal/migrate"
	"marketplace/internal/obs"
	"marketplace/internal/store/pg"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	obs.SetLevel(cfg.LogLevel)
	log := obs.Logger().With().Str("component", "migrate").Logger()

	dsn := flag.String("dsn", cfg.PostgresDSN, "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal().Msg("missing DSN: provide via -dsn or PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal().Msg("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB())

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			log.Info().Str("migration", name).Msg("applied")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			log.Info().Str("migration", name).Msg("rolled back")
		}
	case "seed":
		err = auth.EnsureBuiltins(ctx, store)
		if err == nil {
			log.Info().Int("permissions", len(auth.BuiltinPermissions)).Int("roles", len(auth.BuiltinRoles)).Msg("builtin rbac seeded")
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatal().Str("command", flag.Arg(0)).Msg("unknown command")
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("migrate failed")
	}
}
