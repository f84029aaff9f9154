// Package main provides the API server entry point for the vault scanner
// service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vault-scanner/internal/api"
	"github.com/vault-scanner/internal/chain"
	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/job"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/oracle"
	"github.com/vault-scanner/internal/reconciler"
	"github.com/vault-scanner/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Load the vault registry
	registry, err := config.LoadRegistry(cfg.Vaults.RegistryPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load vault registry")
	}
	logger.Infof("Loaded %d vaults from registry", len(registry.Vaults()))

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// External collaborators
	gateway := chain.NewGatewayClient(cfg.Chain.GatewayBaseURL, cfg.Chain.RequestTimeout)
	prices := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.RequestsPerSecond, cfg.Oracle.RequestTimeout, logger)

	// Repositories and caches
	recordRepo := storage.NewDepositorRecordRepository(postgres)
	snapshotRepo := storage.NewVaultSnapshotRepository(postgres)
	metricsCache := storage.NewMetricsCache(redis)

	// Jobs
	rec := reconciler.New(gateway, gateway, gateway, prices, registry, cfg.Backfill, logger)
	backfillJob := job.NewBackfillJob(rec, recordRepo, registry, cfg.Backfill, logger)
	snapshotJob := job.NewSnapshotJob(gateway, snapshotRepo, registry, cfg.Snapshot, logger)
	metricsJob := job.NewMetricsJob(gateway, snapshotRepo, metricsCache, registry, cfg.Metrics, logger)

	server := api.NewServer(
		&cfg.Server,
		cfg.Cron.Secret,
		snapshotRepo,
		recordRepo,
		metricsCache,
		backfillJob,
		snapshotJob,
		metricsJob,
		logger,
	)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
