package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vault-scanner/internal/chain"
	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/metric"
	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/types"
)

// VaultSnapshotReader is the read surface the metrics job needs
type VaultSnapshotReader interface {
	ListByVaultTsDesc(ctx context.Context, vault string) ([]models.VaultSnapshot, error)
}

// MetricsWriter persists the computed metrics set for the read API
type MetricsWriter interface {
	WriteAll(ctx context.Context, metrics map[string]models.VaultMetrics) error
}

// MetricsVaultResult summarizes one vault's metric computation
type MetricsVaultResult struct {
	Vault   string               `json:"vault"`
	Name    string               `json:"name"`
	Metrics *models.VaultMetrics `json:"metrics,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// MetricsResult summarizes a metrics run across vaults
type MetricsResult struct {
	StartedAt   time.Time            `json:"startedAt"`
	CompletedAt time.Time            `json:"completedAt"`
	Vaults      []MetricsVaultResult `json:"vaults"`
	Failed      int                  `json:"failed"`
	CacheWrite  bool                 `json:"cacheWrite"`
}

// MetricsJob recomputes APY, drawdown and capacity metrics for every vault
// and refreshes the metrics cache.
type MetricsJob struct {
	reader    chain.VaultReader
	snapshots VaultSnapshotReader
	cache     MetricsWriter
	registry  *config.Registry
	cfg       config.MetricsConfig
	logger    *logging.Logger
}

// NewMetricsJob creates a new metrics job
func NewMetricsJob(
	reader chain.VaultReader,
	snapshots VaultSnapshotReader,
	cache MetricsWriter,
	registry *config.Registry,
	cfg config.MetricsConfig,
	logger *logging.Logger,
) *MetricsJob {
	return &MetricsJob{
		reader:    reader,
		snapshots: snapshots,
		cache:     cache,
		registry:  registry,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run computes metrics for every registered vault concurrently. The cache is
// only refreshed when enough vaults succeeded, so one flaky RPC read cannot
// wipe most of the cached set.
func (j *MetricsJob) Run(ctx context.Context) (*MetricsResult, error) {
	result := &MetricsResult{StartedAt: time.Now().UTC()}
	vaults := j.registry.Vaults()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		metrics = make(map[string]models.VaultMetrics, len(vaults))
	)

	results := make([]MetricsVaultResult, len(vaults))
	for i, vault := range vaults {
		wg.Add(1)
		go func(i int, vault config.VaultConfig) {
			defer wg.Done()

			vaultResult := MetricsVaultResult{Vault: vault.VaultPubkey, Name: vault.Name}
			m, err := j.computeVault(ctx, vault)
			if err != nil {
				vaultResult.Error = err.Error()
				j.logger.WithField("vault", vault.VaultPubkey).WithError(err).Error("metric computation failed")
			} else {
				vaultResult.Metrics = m
				mu.Lock()
				metrics[vault.VaultPubkey] = *m
				mu.Unlock()
			}
			results[i] = vaultResult
		}(i, vault)
	}
	wg.Wait()

	for _, vaultResult := range results {
		if vaultResult.Error != "" {
			result.Failed++
		}
	}
	result.Vaults = results

	if len(metrics) < j.cfg.MinVaultsForCacheWrite {
		j.logger.Warnf("skipping cache write: only %d of %d vaults computed", len(metrics), len(vaults))
	} else {
		if err := j.cache.WriteAll(ctx, metrics); err != nil {
			return nil, fmt.Errorf("failed to write metrics cache: %w", err)
		}
		result.CacheWrite = true
	}

	result.CompletedAt = time.Now().UTC()
	return result, nil
}

func (j *MetricsJob) computeVault(ctx context.Context, vault config.VaultConfig) (*models.VaultMetrics, error) {
	snapshots, err := j.snapshots.ListByVaultTsDesc(ctx, vault.VaultPubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

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

	liveValue := baseValue(quoteValue, oraclePrice, market.PrecisionExp)
	useQuoteValue := vault.IsNotionalGrowthStrategy
	if useQuoteValue {
		liveValue = quoteValue
	}

	now := time.Now().UTC().Unix()
	perfFeeFraction := metric.ToFloat(state.ProfitShare, types.PercentagePrecisionExp)
	valuePerShareAtEnd := metric.ToFloat(metric.ValuePerShare(liveValue, state.TotalShares), types.SharesPrecisionExp)

	m := &models.VaultMetrics{
		Apys:           metric.ComputePeriodApys(snapshots, types.SharesPrecisionExp, now, perfFeeFraction, valuePerShareAtEnd, useQuoteValue),
		MaxDrawdownPct: metric.MaxDailyDrawdown(snapshots, useQuoteValue) * 100,
		CapacityPct:    metric.CapacityPct(baseValue(quoteValue, oraclePrice, market.PrecisionExp), vault.MaxCapacity),
		NumSnapshots:   len(snapshots),
	}

	return m, nil
}
