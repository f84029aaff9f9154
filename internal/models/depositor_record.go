package models

import (
	"github.com/shopspring/decimal"

	"github.com/vault-scanner/internal/types"
)

// DepositorRecord is one ledger entry for a vault-level depositor action.
// Records are reconciled from transaction logs, validated, and then immutable:
// the store is an append-only ledger. (tx_sig, amount, vault,
// depositor_authority) is unique to keep overlapping backfill windows
// idempotent.
type DepositorRecord struct {
	ID   int64  `json:"id" db:"id"`
	Ts   int64  `json:"ts" db:"ts"`
	TxSig string `json:"txSig" db:"tx_sig"`
	Slot int64  `json:"slot" db:"slot"`

	Vault              string                `json:"vault" db:"vault"`
	DepositorAuthority string                `json:"depositorAuthority" db:"depositor_authority"`
	Action             types.DepositorAction `json:"action" db:"action"`
	Amount             decimal.Decimal       `json:"amount" db:"amount"`
	MarketIndex        int                   `json:"marketIndex" db:"market_index"`

	VaultSharesBefore      decimal.Decimal `json:"vaultSharesBefore" db:"vault_shares_before"`
	VaultSharesAfter       decimal.Decimal `json:"vaultSharesAfter" db:"vault_shares_after"`
	VaultEquityBefore      decimal.Decimal `json:"vaultEquityBefore" db:"vault_equity_before"`
	UserVaultSharesBefore  decimal.Decimal `json:"userVaultSharesBefore" db:"user_vault_shares_before"`
	TotalVaultSharesBefore decimal.Decimal `json:"totalVaultSharesBefore" db:"total_vault_shares_before"`
	UserVaultSharesAfter   decimal.Decimal `json:"userVaultSharesAfter" db:"user_vault_shares_after"`
	TotalVaultSharesAfter  decimal.Decimal `json:"totalVaultSharesAfter" db:"total_vault_shares_after"`

	ProfitShare         decimal.Decimal `json:"profitShare" db:"profit_share"`
	ManagementFee       decimal.Decimal `json:"managementFee" db:"management_fee"`
	ManagementFeeShares decimal.Decimal `json:"managementFeeShares" db:"management_fee_shares"`

	// AssetPrice is the oracle price at transaction time, either parsed from
	// the transaction log or recovered from the historical price oracle.
	AssetPrice decimal.Decimal `json:"assetPrice" db:"asset_price"`
	// NotionalValue is amount priced into quote-asset units.
	NotionalValue decimal.Decimal `json:"notionalValue" db:"notional_value"`
}
