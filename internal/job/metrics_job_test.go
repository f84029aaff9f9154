package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-scanner/internal/chain"
	"github.com/vault-scanner/internal/config"
	"github.com/vault-scanner/internal/logging"
	"github.com/vault-scanner/internal/metric"
	"github.com/vault-scanner/internal/models"
)

type fakeSnapshotReader struct {
	snapshots map[string][]models.VaultSnapshot
	errs      map[string]error
}

func (f *fakeSnapshotReader) ListByVaultTsDesc(ctx context.Context, vault string) ([]models.VaultSnapshot, error) {
	if err := f.errs[vault]; err != nil {
		return nil, err
	}
	return f.snapshots[vault], nil
}

type fakeMetricsWriter struct {
	written map[string]models.VaultMetrics
	writes  int
}

func (f *fakeMetricsWriter) WriteAll(ctx context.Context, metrics map[string]models.VaultMetrics) error {
	f.written = metrics
	f.writes++
	return nil
}

func metricsRegistry() *config.Registry {
	return config.NewRegistry(
		[]config.VaultConfig{
			{Name: "a", VaultPubkey: "vault-a", ManagerPubkey: "mgr-a", MarketIndex: 1, MaxCapacity: decimal.New(4, 9)},
			{Name: "b", VaultPubkey: "vault-b", ManagerPubkey: "mgr-b", MarketIndex: 1, MaxCapacity: decimal.New(4, 9)},
		},
		[]config.MarketConfig{{MarketIndex: 1, Symbol: "SOL", PrecisionExp: 9, PriceFeedID: "feed"}},
	)
}

func metricsReader() *fakeVaultReader {
	state := solVaultState()
	return &fakeVaultReader{
		states: map[string]*chain.VaultState{"vault-a": state, "vault-b": state},
		// $2 at a $2 oracle price: one base unit of live TVL per vault.
		equity: map[string]decimal.Decimal{
			"vault-a": decimal.NewFromInt(2_000_000),
			"vault-b": decimal.NewFromInt(2_000_000),
		},
		prices: map[int]decimal.Decimal{1: decimal.NewFromInt(2_000_000)},
	}
}

func historySnapshots() []models.VaultSnapshot {
	now := time.Now().UTC().Unix()
	return []models.VaultSnapshot{
		{
			Ts:                    now - 8*metric.OneDaySeconds,
			TotalAccountBaseValue: decimal.New(1, 9),
			TotalShares:           decimal.NewFromInt(1000),
			NetDeposits:           decimal.New(1, 9),
		},
	}
}

func newMetricsJob(reader *fakeVaultReader, snapshots *fakeSnapshotReader, writer *fakeMetricsWriter, minVaults int) *MetricsJob {
	return NewMetricsJob(reader, snapshots, writer, metricsRegistry(),
		config.MetricsConfig{MinVaultsForCacheWrite: minVaults},
		logging.NewLogger(logging.LevelFatal, logging.FormatText))
}

func TestMetricsJob_ComputesAndWritesAllVaults(t *testing.T) {
	snapshots := &fakeSnapshotReader{snapshots: map[string][]models.VaultSnapshot{
		"vault-a": historySnapshots(),
		"vault-b": historySnapshots(),
	}}
	writer := &fakeMetricsWriter{}

	result, err := newMetricsJob(metricsReader(), snapshots, writer, 2).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.CacheWrite)
	assert.Zero(t, result.Failed)
	require.Len(t, writer.written, 2)

	m := writer.written["vault-a"]
	assert.Equal(t, 1, m.NumSnapshots)
	// One base unit of TVL against a capacity of four.
	assert.InDelta(t, 25.0, m.CapacityPct, 1e-9)
	// A single snapshot has no daily deltas to draw down over.
	assert.Zero(t, m.MaxDrawdownPct)
}

func TestMetricsJob_SkipsCacheWriteBelowMinimum(t *testing.T) {
	snapshots := &fakeSnapshotReader{
		snapshots: map[string][]models.VaultSnapshot{"vault-b": historySnapshots()},
		errs:      map[string]error{"vault-a": errors.New("db unavailable")},
	}
	writer := &fakeMetricsWriter{}

	result, err := newMetricsJob(metricsReader(), snapshots, writer, 2).Run(context.Background())
	require.NoError(t, err)

	// One of two vaults failed: below the minimum, the stale cache is kept.
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.CacheWrite)
	assert.Zero(t, writer.writes)
}

func TestMetricsJob_EmptyHistoryStillProducesMetrics(t *testing.T) {
	snapshots := &fakeSnapshotReader{}
	writer := &fakeMetricsWriter{}

	result, err := newMetricsJob(metricsReader(), snapshots, writer, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Failed)
	assert.True(t, result.CacheWrite)

	m := writer.written["vault-a"]
	assert.Zero(t, m.NumSnapshots)
	assert.Zero(t, m.Apys.Apy7D)
	assert.InDelta(t, 25.0, m.CapacityPct, 1e-9)
}
