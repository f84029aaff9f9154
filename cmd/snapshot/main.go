// Package main provides a CLI runner for the vault snapshot capture job.
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
	"github.com/vault-scanner/internal/storage"
)

func main() {
	vaults := flag.String("vaults", "", "Comma-separated vault pubkeys to snapshot (default: all)")
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
	snapshotRepo := storage.NewVaultSnapshotRepository(postgres)

	snapshotJob := job.NewSnapshotJob(gateway, snapshotRepo, registry, cfg.Snapshot, logger)

	var vaultPubkeys []string
	if *vaults != "" {
		for _, pubkey := range strings.Split(*vaults, ",") {
			if pubkey = strings.TrimSpace(pubkey); pubkey != "" {
				vaultPubkeys = append(vaultPubkeys, pubkey)
			}
		}
	}

	result, err := snapshotJob.Run(context.Background(), vaultPubkeys)
	if err != nil {
		logger.WithError(err).Fatal("Snapshot capture failed")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(result)

	if result.Failed > 0 {
		os.Exit(1)
	}
}
