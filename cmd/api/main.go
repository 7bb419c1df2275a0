package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/config"
	"marketplace/internal/httpapi"
	"marketplace/internal/obs"
	"marketplace/internal/store"
)

var version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	obs.Init(version)
	obs.SetLevel(cfg.LogLevel)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open stores")
	}
	defer backends.Close()

	if backends.Database == nil {
		if err := auth.EnsureBuiltins(ctx, backends.RBAC); err != nil {
			log.Fatal().Err(err).Msg("seed builtin rbac")
		}
	}

	opts := []auth.Option{
		auth.WithAccessLifetime(cfg.AccessTTL),
		auth.WithRefreshLifetime(cfg.RefreshTTL),
		auth.WithRefreshPepper(cfg.RefreshTokenPepper),
		auth.WithStoreTimeout(cfg.StoreTimeout),
		auth.WithReuseDetection(cfg.ReuseDetection),
		auth.WithReuseGrace(cfg.ReuseGrace),
	}
	svc, janitor, err := buildServices(cfg, backends, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("build auth services")
	}

	api := httpapi.New(httpapi.ReadyProbe{Store: backends.Database, Revocations: backends.Cache}, version, svc)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.PurgeInterval > 0 {
		go janitor.Run(ctx, cfg.PurgeInterval)
	}

	go func() {
		log.Info().Str("version", version).Str("addr", srv.Addr).Msg("starting marketplace auth api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("stopped")
}

func buildServices(cfg *config.Config, b *store.Backends, opts []auth.Option) (httpapi.Services, *auth.Janitor, error) {
	codec, err := auth.NewTokenCodec([]byte(cfg.AuthSecret), opts...)
	if err != nil {
		return httpapi.Services{}, nil, err
	}
	sessions, err := auth.NewSessionManager(b.Users, b.Refresh, b.Revocations, codec, opts...)
	if err != nil {
		return httpapi.Services{}, nil, err
	}
	authn, err := auth.NewAuthenticator(codec, b.Revocations, b.Users, opts...)
	if err != nil {
		return httpapi.Services{}, nil, err
	}
	evaluator, err := auth.NewEvaluator(b.RBAC, opts...)
	if err != nil {
		return httpapi.Services{}, nil, err
	}
	registrar, err := auth.NewRegistrar(b.Users, opts...)
	if err != nil {
		return httpapi.Services{}, nil, err
	}
	janitor, err := auth.NewJanitor(b.Refresh, b.Revocations, cfg.PurgeRetention, opts...)
	if err != nil {
		return httpapi.Services{}, nil, err
	}
	return httpapi.Services{
		Sessions:      sessions,
		Authenticator: authn,
		Evaluator:     evaluator,
		Registrar:     registrar,
	}, janitor, nil
}
