package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/reconciler"
	"github.com/vault-scanner/internal/storage"
)

// RecordReconciler produces priced depositor records for a vault from chain
// history. Implemented by reconciler.Reconciler.
type RecordReconciler interface {
	BackfillRecords(ctx context.Context, vaultPubkey, managerPubkey, untilTx string) ([]models.DepositorRecord, error)
}

// DepositorRecordStore is the persistence surface the backfill job needs
type DepositorRecordStore interface {
	LatestByVault(ctx context.Context, vault string) (*models.DepositorRecord, error)
	TxSigsByVault(ctx context.Context, vault string) (map[string]struct{}, error)
	BulkInsert(ctx context.Context, records []models.DepositorRecord, batchSize int) error
}

// BackfillVaultResult summarizes one vault's backfill
type BackfillVaultResult struct {
	Vault           string `json:"vault"`
	Name            string `json:"name"`
	RecordsFetched  int    `json:"recordsFetched"`
	RecordsInserted int    `json:"recordsInserted"`
	Error           string `json:"error,omitempty"`
}

// BackfillResult summarizes a backfill run across vaults
type BackfillResult struct {
	RunID       string                `json:"runId"`
	StartedAt   time.Time             `json:"startedAt"`
	CompletedAt time.Time             `json:"completedAt"`
	Vaults      []BackfillVaultResult `json:"vaults"`
	Failed      int                   `json:"failed"`
}

// BackfillJob backfills depositor records from chain history into the store
type BackfillJob struct {
	reconciler RecordReconciler
	records    DepositorRecordStore
	registry   *config.Registry
	cfg        config.BackfillConfig
	logger     *logging.Logger
}

// NewBackfillJob creates a new backfill job
func NewBackfillJob(
	reconciler RecordReconciler,
	records DepositorRecordStore,
	registry *config.Registry,
	cfg config.BackfillConfig,
	logger *logging.Logger,
) *BackfillJob {
	return &BackfillJob{
		reconciler: reconciler,
		records:    records,
		registry:   registry,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run backfills the given vault pubkeys, or every registered vault when the
// list is empty. fullBackfill ignores stored history and refetches from the
// beginning. Vaults fail independently: one vault's error never blocks the
// rest, and a failed vault writes nothing.
func (j *BackfillJob) Run(ctx context.Context, vaultPubkeys []string, fullBackfill bool) (*BackfillResult, error) {
	result := &BackfillResult{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	vaults := j.registry.FilterVaults(vaultPubkeys)
	if len(vaults) == 0 {
		return nil, fmt.Errorf("no matching vaults to backfill")
	}

	logger := j.logger.WithField("runId", result.RunID)
	logger.Infof("starting backfill for %d vaults (full=%v)", len(vaults), fullBackfill)

	for _, vault := range vaults {
		vaultResult := j.backfillVault(ctx, vault, fullBackfill)
		if vaultResult.Error != "" {
			result.Failed++
		}
		result.Vaults = append(result.Vaults, vaultResult)
	}

	result.CompletedAt = time.Now().UTC()
	logger.Infof("backfill complete: %d vaults, %d failed", len(result.Vaults), result.Failed)
	return result, nil
}

func (j *BackfillJob) backfillVault(ctx context.Context, vault config.VaultConfig, fullBackfill bool) BackfillVaultResult {
	result := BackfillVaultResult{Vault: vault.VaultPubkey, Name: vault.Name}
	logger := j.logger.WithFields(map[string]interface{}{
		"vault": vault.VaultPubkey,
		"name":  vault.Name,
	})

	untilTx := ""
	if !fullBackfill {
		latest, err := j.records.LatestByVault(ctx, vault.VaultPubkey)
		if err != nil {
			result.Error = err.Error()
			logger.WithError(err).Error("failed to load latest depositor record")
			return result
		}
		if latest != nil {
			untilTx = latest.TxSig
		}
	}

	records, err := j.reconciler.BackfillRecords(ctx, vault.VaultPubkey, vault.ManagerPubkey, untilTx)
	if err != nil {
		result.Error = err.Error()
		logger.WithError(err).Error("backfill reconciliation failed")
		return result
	}
	result.RecordsFetched = len(records)

	if len(records) == 0 {
		logger.Info("no new depositor records")
		return result
	}

	existing, err := j.records.TxSigsByVault(ctx, vault.VaultPubkey)
	if err != nil {
		result.Error = err.Error()
		logger.WithError(err).Error("failed to load existing signatures")
		return result
	}
	fresh := storage.FilterNew(records, existing)
	if len(fresh) == 0 {
		logger.Infof("all %d records already stored", len(records))
		return result
	}

	// Bad batches are rejected wholesale so a pricing bug can never leave
	// partially written history behind.
	if err := reconciler.Validate(fresh); err != nil {
		result.Error = err.Error()
		logger.WithError(err).Error("depositor record validation failed")
		return result
	}

	if err := j.records.BulkInsert(ctx, fresh, j.cfg.InsertBatchSize); err != nil {
		result.Error = err.Error()
		logger.WithError(err).Error("failed to insert depositor records")
		return result
	}

	result.RecordsInserted = len(fresh)
	logger.Infof("inserted %d of %d fetched records", len(fresh), len(records))
	return result
}
