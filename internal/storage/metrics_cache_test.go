package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-scanner/internal/models"
)

func newTestMetricsCache(t *testing.T) *MetricsCache {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewMetricsCache(NewRedisCacheFromClient(client))
}

func TestMetricsCache_RoundTrip(t *testing.T) {
	cache := newTestMetricsCache(t)
	ctx := context.Background()

	metrics := map[string]models.VaultMetrics{
		"vault-1": {
			Apys:           models.PeriodApys{Apy7D: 12.5, Apy30D: 9.1, Apy90D: 7.3},
			MaxDrawdownPct: -1.98,
			CapacityPct:    42.0,
			NumSnapshots:   90,
		},
		"vault-2": {
			Apys:         models.PeriodApys{Apy7D: -3.2},
			NumSnapshots: 4,
		},
	}

	require.NoError(t, cache.WriteAll(ctx, metrics))

	got, err := cache.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, metrics, got)
}

func TestMetricsCache_WriteAllReplacesWholesale(t *testing.T) {
	cache := newTestMetricsCache(t)
	ctx := context.Background()

	require.NoError(t, cache.WriteAll(ctx, map[string]models.VaultMetrics{
		"vault-1": {NumSnapshots: 1},
		"vault-2": {NumSnapshots: 2},
	}))

	// A later cycle that no longer tracks vault-2 must not leave it behind.
	require.NoError(t, cache.WriteAll(ctx, map[string]models.VaultMetrics{
		"vault-1": {NumSnapshots: 3},
	}))

	got, err := cache.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, got["vault-1"].NumSnapshots)
}

func TestMetricsCache_ReadAllEmpty(t *testing.T) {
	cache := newTestMetricsCache(t)

	got, err := cache.ReadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}
