package job

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vault-scanner/internal/chain"
	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/retry"
)

// VaultSnapshotStore is the persistence surface the snapshot job needs
type VaultSnapshotStore interface {
	Insert(ctx context.Context, snapshot *models.VaultSnapshot) error
}

// SnapshotVaultResult summarizes one vault's snapshot capture
type SnapshotVaultResult struct {
	Vault string `json:"vault"`
	Name  string `json:"name"`
	Slot  int64  `json:"slot,omitempty"`
	Error string `json:"error,omitempty"`
}

// SnapshotResult summarizes a snapshot run across vaults
type SnapshotResult struct {
	StartedAt   time.Time             `json:"startedAt"`
	CompletedAt time.Time             `json:"completedAt"`
	Vaults      []SnapshotVaultResult `json:"vaults"`
	Failed      int                   `json:"failed"`
}

// SnapshotJob captures point-in-time vault state into the snapshot store
type SnapshotJob struct {
	reader    chain.VaultReader
	snapshots VaultSnapshotStore
	registry  *config.Registry
	cfg       config.SnapshotConfig
	logger    *logging.Logger
}

// NewSnapshotJob creates a new snapshot job
func NewSnapshotJob(
	reader chain.VaultReader,
	snapshots VaultSnapshotStore,
	registry *config.Registry,
	cfg config.SnapshotConfig,
	logger *logging.Logger,
) *SnapshotJob {
	return &SnapshotJob{
		reader:    reader,
		snapshots: snapshots,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run captures one snapshot per selected vault. An empty filter selects
// every registered vault; unknown pubkeys are dropped. Each vault retries
// independently; a vault that exhausts its retries is reported in the result
// without blocking the others.
func (j *SnapshotJob) Run(ctx context.Context, vaultPubkeys []string) (*SnapshotResult, error) {
	vaults := j.registry.FilterVaults(vaultPubkeys)
	if len(vaults) == 0 {
		return nil, fmt.Errorf("no matching vaults to snapshot")
	}

	result := &SnapshotResult{StartedAt: time.Now().UTC()}

	for _, vault := range vaults {
		vaultResult := SnapshotVaultResult{Vault: vault.VaultPubkey, Name: vault.Name}
		logger := j.logger.WithFields(map[string]interface{}{
			"vault": vault.VaultPubkey,
			"name":  vault.Name,
		})

		retryCfg := retry.FixedDelayConfig(j.cfg.MaxAttempts, j.cfg.RetryDelay)
		err := retry.Do(ctx, retryCfg, func(ctx context.Context, attempt int) error {
			snapshot, err := j.captureVault(ctx, vault)
			if err != nil {
				return err
			}
			if err := j.snapshots.Insert(ctx, snapshot); err != nil {
				return err
			}
			vaultResult.Slot = snapshot.Slot
			return nil
		})
		if err != nil {
			vaultResult.Error = err.Error()
			result.Failed++
			logger.WithError(err).Error("snapshot capture failed")
		} else {
			logger.WithField("slot", vaultResult.Slot).Info("snapshot captured")
		}

		result.Vaults = append(result.Vaults, vaultResult)
	}

	result.CompletedAt = time.Now().UTC()
	return result, nil
}

func (j *SnapshotJob) captureVault(ctx context.Context, vault config.VaultConfig) (*models.VaultSnapshot, error) {
	state, err := j.reader.GetVaultState(ctx, vault.VaultPubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault state: %w", err)
	}

	quoteValue, err := j.reader.GetVaultEquity(ctx, vault.VaultPubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault equity: %w", err)
	}

	oraclePrice, err := j.reader.GetOraclePrice(ctx, state.MarketIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle price: %w", err)
	}
	if oraclePrice.IsZero() {
		return nil, fmt.Errorf("oracle price is zero for market %d", state.MarketIndex)
	}

	market, err := j.registry.MarketByIndex(state.MarketIndex)
	if err != nil {
		return nil, err
	}

	snapshot := &models.VaultSnapshot{
		Ts:                      time.Now().UTC().Unix(),
		Slot:                    state.Slot,
		Vault:                   vault.VaultPubkey,
		OraclePrice:             oraclePrice,
		TotalAccountQuoteValue:  quoteValue,
		TotalAccountBaseValue:   baseValue(quoteValue, oraclePrice, market.PrecisionExp),
		UserShares:              state.UserShares,
		TotalShares:             state.TotalShares,
		NetDeposits:             state.NetDeposits,
		TotalDeposits:           state.TotalDeposits,
		TotalWithdraws:          state.TotalWithdraws,
		TotalWithdrawRequested:  state.TotalWithdrawRequested,
		ManagerNetDeposits:      state.ManagerNetDeposits,
		ManagerTotalDeposits:    state.ManagerTotalDeposits,
		ManagerTotalWithdraws:   state.ManagerTotalWithdraws,
		ManagerTotalFee:         state.ManagerTotalFee,
		ManagerTotalProfitShare: state.ManagerTotalProfitShare,
	}

	// Notional-growth vaults track performance against quote-denominated
	// flows, which only the base-protocol user account records.
	if vault.IsNotionalGrowthStrategy {
		netQuote, err := j.reader.GetUserNetQuoteDeposits(ctx, vault.UserPubkey)
		if err != nil {
			return nil, fmt.Errorf("failed to read net quote deposits: %w", err)
		}
		snapshot.NetQuoteDeposits = &netQuote
	}

	return snapshot, nil
}

// baseValue converts a quote-denominated account value to base-asset raw
// units at the given oracle price. Quote and price raw values carry the same
// exponent, so they cancel and only the market's own exponent remains.
func baseValue(quoteValue, oraclePrice decimal.Decimal, marketPrecisionExp int32) decimal.Decimal {
	return quoteValue.Shift(marketPrecisionExp).Div(oraclePrice).Truncate(0)
}
