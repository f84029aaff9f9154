package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// MarketConfig describes one spot market the vaults deposit into. These are
// fixed at vault inception, so they live in the registry file instead of
// being fetched on-chain every run.
type MarketConfig struct {
	MarketIndex  int    `json:"marketIndex"`
	Symbol       string `json:"symbol"`
	PrecisionExp int32  `json:"precisionExp"`
	// PriceFeedID keys historical price lookups against the oracle API.
	// Empty for the quote market, which never needs a lookup.
	PriceFeedID string `json:"priceFeedId"`
}

// VaultConfig describes one vault tracked by the scanner.
type VaultConfig struct {
	Name          string `json:"name"`
	VaultPubkey   string `json:"vaultPubkey"`
	ManagerPubkey string `json:"managerPubkey"`
	// UserPubkey is the vault's account on the base protocol, used to read
	// cumulative quote deposits/withdraws when capturing snapshots.
	UserPubkey  string `json:"userPubkey"`
	Description string `json:"description,omitempty"`
	MarketIndex int    `json:"marketIndex"`
	// IsNotionalGrowthStrategy marks vaults whose strategy targets notional
	// growth rather than base-asset growth; metric computations then use
	// quote values instead of base values.
	IsNotionalGrowthStrategy bool `json:"isNotionalGrowthStrategy"`
	// MaxCapacity is the deposit cap in base-asset raw units, as decimal text.
	MaxCapacity decimal.Decimal `json:"maxCapacity"`
}

// Registry holds the configured vaults and markets with lookup helpers.
type Registry struct {
	vaults  []VaultConfig
	markets map[int]MarketConfig
}

type registryFile struct {
	Markets []MarketConfig `json:"markets"`
	Vaults  []VaultConfig  `json:"vaults"`
}

// LoadRegistry reads and validates the vault registry JSON file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault registry: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse vault registry: %w", err)
	}

	markets := make(map[int]MarketConfig, len(file.Markets))
	for _, market := range file.Markets {
		if _, ok := markets[market.MarketIndex]; ok {
			return nil, fmt.Errorf("duplicate market index %d in vault registry", market.MarketIndex)
		}
		markets[market.MarketIndex] = market
	}

	for _, vault := range file.Vaults {
		if vault.VaultPubkey == "" || vault.ManagerPubkey == "" {
			return nil, fmt.Errorf("vault %q is missing vault or manager pubkey", vault.Name)
		}
		if _, ok := markets[vault.MarketIndex]; !ok {
			return nil, fmt.Errorf("vault %q references unknown market index %d", vault.Name, vault.MarketIndex)
		}
	}

	return &Registry{vaults: file.Vaults, markets: markets}, nil
}

// NewRegistry builds a registry from already-validated configs.
func NewRegistry(vaults []VaultConfig, markets []MarketConfig) *Registry {
	indexed := make(map[int]MarketConfig, len(markets))
	for _, market := range markets {
		indexed[market.MarketIndex] = market
	}
	return &Registry{vaults: vaults, markets: indexed}
}

// Vaults returns all configured vaults.
func (r *Registry) Vaults() []VaultConfig {
	return r.vaults
}

// VaultByPubkey looks up a vault config by its pubkey.
func (r *Registry) VaultByPubkey(pubkey string) (VaultConfig, bool) {
	for _, vault := range r.vaults {
		if vault.VaultPubkey == pubkey {
			return vault, true
		}
	}
	return VaultConfig{}, false
}

// MarketByIndex looks up a market config by its index.
func (r *Registry) MarketByIndex(index int) (MarketConfig, error) {
	market, ok := r.markets[index]
	if !ok {
		return MarketConfig{}, fmt.Errorf("market not found for market index %d", index)
	}
	return market, nil
}

// FilterVaults restricts the registry's vaults to the given pubkeys, dropping
// unknown ones. An empty filter returns every configured vault.
func (r *Registry) FilterVaults(pubkeys []string) []VaultConfig {
	if len(pubkeys) == 0 {
		return r.vaults
	}

	var filtered []VaultConfig
	for _, pubkey := range pubkeys {
		if vault, ok := r.VaultByPubkey(pubkey); ok {
			filtered = append(filtered, vault)
		}
	}
	return filtered
}
