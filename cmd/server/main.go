/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the YN reward ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, optional YAML file, environment)
  2. Set up structured logging
  3. Open the SQLite store and load the catalog
  4. Build the ledger core, processors and auth service
  5. Configure the HTTP router and start the sweeper
  6. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (server.shutdown_timeout)
  3. Stop the sweeper
  4. Close the database

EXAMPLES:
  ./server -config=config.yaml
  YN_DATABASE_PATH=":memory:" YN_LOG_FORMAT=text ./server

SEE ALSO:
  - config/config.go: Configuration keys and env variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/cors"
	"github.com/ynaut/reward-ledger/api"
	"github.com/ynaut/reward-ledger/auth"
	"github.com/ynaut/reward-ledger/catalog"
	"github.com/ynaut/reward-ledger/config"
	"github.com/ynaut/reward-ledger/ledger"
	"github.com/ynaut/reward-ledger/metrics"
	"github.com/ynaut/reward-ledger/rewards"
	"github.com/ynaut/reward-ledger/shop"
	"github.com/ynaut/reward-ledger/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}()
	logger.Info("database opened", "path", cfg.Database.Path)

	items, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", "items", len(items.Items()), "path", cfg.Catalog.Path)

	m := metrics.New()
	core := ledger.NewCore(store, ledger.WithObserver(m))

	authSvc := auth.NewService(store, core, auth.Options{
		SessionTTL:  cfg.Auth.SessionTTL,
		BcryptCost:  cfg.Auth.BcryptCost,
		SignupBonus: cfg.Rewards.SignupBonus,
	})

	handler := api.NewHandler(api.Deps{
		Core:    core,
		Rewards: rewards.NewProcessor(core, cfg.Rewards.Schedule()),
		Shop:    shop.NewProcessor(core, items),
		Auth:    authSvc,
		DB:      store,
		Logger:  logger,
	})

	router := api.NewRouter(handler, api.RouterConfig{
		Logger: logger,
		CORS: cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		},
		Metrics:   m,
		Scenarios: !cfg.IsProduction(),
	})

	sweeper := api.NewSweeper(store, authSvc, logger)
	sweeper.Enabled = cfg.Sweeper.Enabled
	sweeper.CheckInterval = cfg.Sweeper.Interval
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
