// cmd/service/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"repo-catalog-sync/internal/api"
	"repo-catalog-sync/internal/cache"
	"repo-catalog-sync/internal/catalog"
	"repo-catalog-sync/internal/config"
	"repo-catalog-sync/internal/database"
	"repo-catalog-sync/internal/enricher"
	"repo-catalog-sync/internal/github"
	"repo-catalog-sync/internal/quality"
	"repo-catalog-sync/internal/syncer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "service",
		Short:         "Keeps the repository catalog in sync with the source host",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sync loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	})

	var batchSize int
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full sync and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return syncOnce(cmd.Context(), batchSize)
		},
	}
	syncCmd.Flags().IntVar(&batchSize, "batch-size", 0, "repositories per insert batch (1-50, defaults to SYNC_BATCH_SIZE)")
	root.AddCommand(syncCmd)

	return root
}

// app holds the wired components shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	host   *github.Client
	syncer *syncer.Syncer
}

// setup builds every component. Logs go to logOut so that `sync` can keep stdout for
// its result.
func setup(ctx context.Context, logOut io.Writer) (*app, error) {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	// 3. Initialize database connection and run migrations
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database connection established")

	if err := runMigrations(cfg.MigrationsPath, cfg.DBURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 4. Initialize application components
	responses := cache.New(cfg.CacheTTL, cfg.FileCacheTTL)
	host, err := github.NewClient(github.Options{
		Token:        cfg.GithubToken,
		Organization: cfg.GithubOrg,
		BaseURL:      cfg.GithubAPIURL,
	}, responses, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create github client: %w", err)
	}

	catalogClient := catalog.NewClient(cfg.CatalogURL, cfg.CatalogToken, logger)
	qualityClient := quality.NewClient(cfg.SonarURL, cfg.SonarToken, cfg.SonarOrganization, logger)
	facts := enricher.New(host, enricher.Options{
		Concurrency: cfg.EnrichConcurrency,
		ChunkSize:   cfg.EnrichChunkSize,
		ChunkPause:  cfg.EnrichChunkPause,
	}, logger)

	appSyncer, err := syncer.NewSyncer(database.New(pool), host, catalogClient, qualityClient, facts, logger, syncer.Options{
		Concurrency: cfg.EnrichConcurrency,
		BatchPause:  cfg.EnrichChunkPause,
		BatchSize:   cfg.SyncBatchSize,
		Interval:    cfg.SyncInterval,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create syncer: %w", err)
	}

	return &app{cfg: cfg, logger: logger, pool: pool, host: host, syncer: appSyncer}, nil
}

func serve(parent context.Context) error {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, os.Stdout)
	if err != nil {
		return err
	}
	defer a.pool.Close()

	// Start the periodic sync loop in a separate goroutine
	go a.syncer.Start(ctx)

	server := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.NewRouter(a.syncer, a.host, a.pool, a.cfg.SyncBatchSize, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "addr", a.cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received. Exiting.")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func syncOnce(parent context.Context, batchSize int) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.pool.Close()

	if batchSize == 0 {
		batchSize = a.cfg.SyncBatchSize
	}
	result, err := a.syncer.Sync(ctx, batchSize)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runMigrations(sourceURL, dbURL string) error {
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
