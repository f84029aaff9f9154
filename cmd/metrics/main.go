// Package main provides a CLI runner for the vault metrics recompute job.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/vault-scanner/internal/chain"
	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/job"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	registry, err := config.LoadRegistry(cfg.Vaults.RegistryPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load vault registry")
	}

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

	gateway := chain.NewGatewayClient(cfg.Chain.GatewayBaseURL, cfg.Chain.RequestTimeout)
	snapshotRepo := storage.NewVaultSnapshotRepository(postgres)
	metricsCache := storage.NewMetricsCache(redis)

	metricsJob := job.NewMetricsJob(gateway, snapshotRepo, metricsCache, registry, cfg.Metrics, logger)

	result, err := metricsJob.Run(context.Background())
	if err != nil {
		logger.WithError(err).Fatal("Metrics recompute failed")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(result)

	if result.Failed > 0 {
		os.Exit(1)
	}
}
