package models

import "github.com/shopspring/decimal"

// VaultSnapshot is one periodic observation of vault-wide on-chain state.
// Snapshots are immutable and time-ordered by slot per vault. A snapshot with
// zero total shares represents an empty vault; per-share metrics derived from
// it must be treated as zero, never divided.
type VaultSnapshot struct {
	ID   int64 `json:"id" db:"id"`
	Ts   int64 `json:"ts" db:"ts"`
	Slot int64 `json:"slot" db:"slot"`

	Vault       string          `json:"vault" db:"vault"`
	OraclePrice decimal.Decimal `json:"oraclePrice" db:"oracle_price"`

	TotalAccountQuoteValue decimal.Decimal `json:"totalAccountQuoteValue" db:"total_account_quote_value"`
	TotalAccountBaseValue  decimal.Decimal `json:"totalAccountBaseValue" db:"total_account_base_value"`

	UserShares  decimal.Decimal `json:"userShares" db:"user_shares"`
	TotalShares decimal.Decimal `json:"totalShares" db:"total_shares"`
	NetDeposits decimal.Decimal `json:"netDeposits" db:"net_deposits"`
	// NetQuoteDeposits is the notional value of net deposits. Only populated
	// for vaults whose strategy tracks notional growth.
	NetQuoteDeposits       *decimal.Decimal `json:"netQuoteDeposits" db:"net_quote_deposits"`
	TotalDeposits          decimal.Decimal  `json:"totalDeposits" db:"total_deposits"`
	TotalWithdraws         decimal.Decimal  `json:"totalWithdraws" db:"total_withdraws"`
	TotalWithdrawRequested decimal.Decimal  `json:"totalWithdrawRequested" db:"total_withdraw_requested"`

	ManagerNetDeposits      decimal.Decimal `json:"managerNetDeposits" db:"manager_net_deposits"`
	ManagerTotalDeposits    decimal.Decimal `json:"managerTotalDeposits" db:"manager_total_deposits"`
	ManagerTotalWithdraws   decimal.Decimal `json:"managerTotalWithdraws" db:"manager_total_withdraws"`
	ManagerTotalProfitShare decimal.Decimal `json:"managerTotalProfitShare" db:"manager_total_profit_share"`
	ManagerTotalFee         decimal.Decimal `json:"managerTotalFee" db:"manager_total_fee"`
}
