// Package chain defines the seams to the on-chain program clients: a
// paginated transaction log source, the event parsers that decode program
// events from raw log text, and a live vault state reader. The concrete
// implementations wrap the external program SDKs and are injected at process
// startup; everything downstream depends only on these interfaces.
package chain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vault-scanner/internal/types"
)

// TransactionLog is the raw log output of one finalized transaction.
type TransactionLog struct {
	TxSig string   `json:"txSig"`
	Slot  int64    `json:"slot"`
	Ts    int64    `json:"ts"`
	Logs  []string `json:"logs"`
}

// LogPage is one page of transaction logs for an address, newest first.
// EarliestTx and MostRecentTx are the boundary markers used to drive
// pagination: the next page is fetched with EarliestTx as its upper bound.
type LogPage struct {
	TransactionLogs []TransactionLog `json:"transactionLogs"`
	EarliestTx      string           `json:"earliestTx"`
	MostRecentTx    string           `json:"mostRecentTx"`
}

// LogSource fetches paginated transaction logs for an address. beforeTx and
// untilTx are exclusive upper and lower bounds; either may be empty.
type LogSource interface {
	FetchLogs(ctx context.Context, address, beforeTx, untilTx string) (*LogPage, error)
}

// DepositorEvent is a vault-program depositor event decoded from a
// transaction log.
type DepositorEvent struct {
	Ts    int64  `json:"ts"`
	Slot  int64  `json:"slot"`
	TxSig string `json:"txSig"`

	Vault              string                `json:"vault"`
	DepositorAuthority string                `json:"depositorAuthority"`
	Action             types.DepositorAction `json:"action"`
	Amount             decimal.Decimal       `json:"amount"`
	MarketIndex        int                   `json:"marketIndex"`

	VaultSharesBefore      decimal.Decimal `json:"vaultSharesBefore"`
	VaultSharesAfter       decimal.Decimal `json:"vaultSharesAfter"`
	VaultEquityBefore      decimal.Decimal `json:"vaultEquityBefore"`
	UserVaultSharesBefore  decimal.Decimal `json:"userVaultSharesBefore"`
	TotalVaultSharesBefore decimal.Decimal `json:"totalVaultSharesBefore"`
	UserVaultSharesAfter   decimal.Decimal `json:"userVaultSharesAfter"`
	TotalVaultSharesAfter  decimal.Decimal `json:"totalVaultSharesAfter"`

	ProfitShare         decimal.Decimal `json:"profitShare"`
	ManagementFee       decimal.Decimal `json:"managementFee"`
	ManagementFeeShares decimal.Decimal `json:"managementFeeShares"`
}

// DepositEvent is a base-protocol deposit event decoded from a transaction
// log. Its amount and oracle price are the source of truth for pricing a
// depositor event in the same transaction.
type DepositEvent struct {
	Amount      decimal.Decimal `json:"amount"`
	OraclePrice decimal.Decimal `json:"oraclePrice"`
	MarketIndex int             `json:"marketIndex"`
}

// DepositorEventParser decodes vault-program depositor events from a
// transaction log. Logs containing no vault events decode to an empty slice.
type DepositorEventParser interface {
	ParseDepositorEvents(log TransactionLog) []DepositorEvent
}

// ProtocolEventParser decodes base-protocol deposit events from a transaction
// log. Parsing can fail outright when the logged oracle state is
// malformed; callers inspect the raw log text to classify the failure.
type ProtocolEventParser interface {
	ParseDepositEvents(log TransactionLog) ([]DepositEvent, error)
}

// VaultState is the live on-chain account state of a vault.
type VaultState struct {
	Slot        int64 `json:"slot"`
	MarketIndex int   `json:"marketIndex"`

	UserShares  decimal.Decimal `json:"userShares"`
	TotalShares decimal.Decimal `json:"totalShares"`
	NetDeposits decimal.Decimal `json:"netDeposits"`

	TotalDeposits          decimal.Decimal `json:"totalDeposits"`
	TotalWithdraws         decimal.Decimal `json:"totalWithdraws"`
	TotalWithdrawRequested decimal.Decimal `json:"totalWithdrawRequested"`

	ManagerNetDeposits      decimal.Decimal `json:"managerNetDeposits"`
	ManagerTotalDeposits    decimal.Decimal `json:"managerTotalDeposits"`
	ManagerTotalWithdraws   decimal.Decimal `json:"managerTotalWithdraws"`
	ManagerTotalProfitShare decimal.Decimal `json:"managerTotalProfitShare"`
	ManagerTotalFee         decimal.Decimal `json:"managerTotalFee"`

	// ProfitShare is the performance fee fraction at percentage precision.
	ProfitShare decimal.Decimal `json:"profitShare"`
	// RedeemPeriod is the withdrawal lockup in seconds.
	RedeemPeriod int64 `json:"redeemPeriod"`
}

// VaultReader reads live vault account state from the base protocol.
type VaultReader interface {
	// GetVaultState returns the vault account data and the slot it was read at.
	GetVaultState(ctx context.Context, vaultPubkey string) (*VaultState, error)
	// GetVaultEquity returns the vault's total account value in quote-asset
	// raw units.
	GetVaultEquity(ctx context.Context, vaultPubkey string) (decimal.Decimal, error)
	// GetOraclePrice returns the live oracle price for a market at price
	// precision. The quote market always prices at one.
	GetOraclePrice(ctx context.Context, marketIndex int) (decimal.Decimal, error)
	// GetUserNetQuoteDeposits returns cumulative deposits minus withdraws in
	// quote units for the vault's base-protocol user account.
	GetUserNetQuoteDeposits(ctx context.Context, userPubkey string) (decimal.Decimal, error)
}
