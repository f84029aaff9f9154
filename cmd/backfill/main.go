// Package main provides a CLI runner for the depositor record backfill job.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/vault-scanner/internal/chain"
	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/job"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/oracle"
	"github.com/vault-scanner/internal/reconciler"
	"github.com/vault-scanner/internal/storage"
)

func main() {
	var (
		vaults       = flag.String("vaults", "", "Comma-separated vault pubkeys to backfill (default: all)")
		fullBackfill = flag.Bool("full", false, "Ignore stored history and refetch from the beginning")
	)
	flag.Parse()

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

	gateway := chain.NewGatewayClient(cfg.Chain.GatewayBaseURL, cfg.Chain.RequestTimeout)
	prices := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.RequestsPerSecond, cfg.Oracle.RequestTimeout, logger)
	recordRepo := storage.NewDepositorRecordRepository(postgres)

	rec := reconciler.New(gateway, gateway, gateway, prices, registry, cfg.Backfill, logger)
	backfillJob := job.NewBackfillJob(rec, recordRepo, registry, cfg.Backfill, logger)

	var vaultPubkeys []string
	if *vaults != "" {
		for _, pubkey := range strings.Split(*vaults, ",") {
			if pubkey = strings.TrimSpace(pubkey); pubkey != "" {
				vaultPubkeys = append(vaultPubkeys, pubkey)
			}
		}
	}

	result, err := backfillJob.Run(context.Background(), vaultPubkeys, *fullBackfill)
	if err != nil {
		logger.WithError(err).Fatal("Backfill failed")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(result)

	if result.Failed > 0 {
		os.Exit(1)
	}
}
