// Package main is the entrypoint for the orgdir API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orgregistry/orgdir/internal/api"
	"github.com/orgregistry/orgdir/internal/api/handler"
	mw "github.com/orgregistry/orgdir/internal/api/middleware"
	"github.com/orgregistry/orgdir/internal/api/response"
	"github.com/orgregistry/orgdir/internal/cache"
	"github.com/orgregistry/orgdir/internal/config"
	"github.com/orgregistry/orgdir/internal/directory"
	"github.com/orgregistry/orgdir/internal/store"
	"github.com/orgregistry/orgdir/internal/token"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	pgStore := store.NewPostgresStore(pool)

	directorySvc := directory.NewService(pgStore, redisCache, cfg.Redis.CacheTTL)
	tokenSvc := token.NewService(pgStore, cfg.Tokens)

	deps := api.Dependencies{
		Gate: mw.NewGate(tokenSvc),

		HealthHandler: healthHandler(pgStore, redisCache),

		IssueTokenHandler: handler.NewIssueTokenHandler(tokenSvc),
		ListTokensHandler: handler.NewListTokensHandler(tokenSvc),

		GetOrganizationByName:          handler.NewGetOrganizationByNameHandler(directorySvc),
		GetOrganizationByID:            handler.NewGetOrganizationByIDHandler(directorySvc),
		GetOrganizationsByAddress:      handler.NewGetOrganizationsByAddressHandler(directorySvc),
		GetOrganizationsByActivity:     handler.NewGetOrganizationsByActivityHandler(directorySvc),
		GetOrganizationsByActivityTree: handler.NewGetOrganizationsByActivityTreeHandler(directorySvc),
		GetOrganizationsNearby:         handler.NewGetOrganizationsNearbyHandler(directorySvc),
		GetActivityDescendants:         handler.NewGetActivityDescendantsHandler(directorySvc),
	}

	router := api.NewRouter(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
