package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistryFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vaults.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRegistry(t *testing.T) {
	path := writeRegistryFile(t, `{
		"markets": [
			{"marketIndex": 0, "symbol": "USDC", "precisionExp": 6},
			{"marketIndex": 1, "symbol": "SOL", "precisionExp": 9, "priceFeedId": "feed-sol"}
		],
		"vaults": [
			{
				"name": "sol-vault",
				"vaultPubkey": "vault-1",
				"managerPubkey": "mgr-1",
				"userPubkey": "user-1",
				"marketIndex": 1,
				"maxCapacity": "5000000000000"
			}
		]
	}`)

	registry, err := LoadRegistry(path)
	require.NoError(t, err)

	require.Len(t, registry.Vaults(), 1)
	vault, ok := registry.VaultByPubkey("vault-1")
	require.True(t, ok)
	assert.Equal(t, "sol-vault", vault.Name)
	assert.Equal(t, "5000000000000", vault.MaxCapacity.String())

	market, err := registry.MarketByIndex(1)
	require.NoError(t, err)
	assert.Equal(t, "SOL", market.Symbol)
	assert.Equal(t, int32(9), market.PrecisionExp)

	_, err = registry.MarketByIndex(7)
	assert.Error(t, err)
}

func TestLoadRegistry_Validation(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantErr  string
	}{
		{
			name: "duplicate market index",
			contents: `{
				"markets": [
					{"marketIndex": 1, "symbol": "SOL", "precisionExp": 9},
					{"marketIndex": 1, "symbol": "ETH", "precisionExp": 9}
				],
				"vaults": []
			}`,
			wantErr: "duplicate market index 1",
		},
		{
			name: "missing manager pubkey",
			contents: `{
				"markets": [{"marketIndex": 1, "symbol": "SOL", "precisionExp": 9}],
				"vaults": [{"name": "bad", "vaultPubkey": "vault-1", "marketIndex": 1}]
			}`,
			wantErr: "missing vault or manager pubkey",
		},
		{
			name: "unknown market index",
			contents: `{
				"markets": [{"marketIndex": 1, "symbol": "SOL", "precisionExp": 9}],
				"vaults": [{"name": "bad", "vaultPubkey": "vault-1", "managerPubkey": "mgr-1", "marketIndex": 3}]
			}`,
			wantErr: "unknown market index 3",
		},
		{
			name:     "malformed json",
			contents: `{"markets": [`,
			wantErr:  "failed to parse vault registry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRegistry(writeRegistryFile(t, tt.contents))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRegistry_FileNotFound(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read vault registry")
}

func TestFilterVaults(t *testing.T) {
	registry := NewRegistry(
		[]VaultConfig{
			{Name: "a", VaultPubkey: "vault-a", ManagerPubkey: "mgr-a", MarketIndex: 1},
			{Name: "b", VaultPubkey: "vault-b", ManagerPubkey: "mgr-b", MarketIndex: 1},
		},
		[]MarketConfig{{MarketIndex: 1, Symbol: "SOL", PrecisionExp: 9}},
	)

	assert.Len(t, registry.FilterVaults(nil), 2)

	filtered := registry.FilterVaults([]string{"vault-b", "vault-unknown"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "b", filtered[0].Name)
}
