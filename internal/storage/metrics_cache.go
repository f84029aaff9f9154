package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vault-scanner/internal/models"
)

// PeriodApysKey is the Redis hash holding per-vault metrics. Fields are vault
// pubkeys, values JSON-encoded VaultMetrics.
const PeriodApysKey = "vaults:period-apys"

// MetricsCache stores computed vault metrics in Redis for the read API
type MetricsCache struct {
	redis *RedisCache
}

// NewMetricsCache creates a new metrics cache
func NewMetricsCache(redis *RedisCache) *MetricsCache {
	return &MetricsCache{redis: redis}
}

// WriteAll replaces the metrics hash wholesale. Writing every vault in one
// shot keeps readers from ever seeing a partially refreshed set.
func (c *MetricsCache) WriteAll(ctx context.Context, metrics map[string]models.VaultMetrics) error {
	values := make(map[string]string, len(metrics))
	for vault, m := range metrics {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics for vault %s: %w", vault, err)
		}
		values[vault] = string(data)
	}

	if err := c.redis.Del(ctx, PeriodApysKey); err != nil {
		return fmt.Errorf("failed to clear metrics cache: %w", err)
	}
	if err := c.redis.HSet(ctx, PeriodApysKey, values); err != nil {
		return fmt.Errorf("failed to write metrics cache: %w", err)
	}

	return nil
}

// ReadAll returns the cached metrics for every vault. An empty map means the
// cache has not been populated yet.
func (c *MetricsCache) ReadAll(ctx context.Context) (map[string]models.VaultMetrics, error) {
	values, err := c.redis.HGetAll(ctx, PeriodApysKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics cache: %w", err)
	}

	metrics := make(map[string]models.VaultMetrics, len(values))
	for vault, data := range values {
		var m models.VaultMetrics
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics for vault %s: %w", vault, err)
		}
		metrics[vault] = m
	}

	return metrics, nil
}
