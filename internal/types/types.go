// Package types provides common type definitions for the vault scanner system.
package types

import "github.com/shopspring/decimal"

// DepositorAction represents the kind of action recorded in a depositor event
type DepositorAction string

const (
	ActionDeposit               DepositorAction = "deposit"
	ActionWithdraw              DepositorAction = "withdraw"
	ActionWithdrawRequest       DepositorAction = "withdrawRequest"
	ActionCancelWithdrawRequest DepositorAction = "cancelWithdrawRequest"
	ActionFeePayment            DepositorAction = "feePayment"
)

// IsDepositOrWithdraw reports whether the action moves funds and therefore
// must carry a non-zero asset price and notional value once reconciled.
func (a DepositorAction) IsDepositOrWithdraw() bool {
	return a == ActionDeposit || a == ActionWithdraw
}

// Fixed-point precision exponents. On-chain quantities are unsigned integers
// scaled by 10^exp; they are carried through the system as arbitrary-precision
// decimals and only collapsed to float64 at the metric boundary.
const (
	// PricePrecisionExp is the exponent for oracle prices.
	PricePrecisionExp int32 = 6
	// QuotePrecisionExp is the exponent for quote-asset (notional) values.
	QuotePrecisionExp int32 = 6
	// SharesPrecisionExp is the exponent for vault shares.
	SharesPrecisionExp int32 = 6
	// PercentagePrecisionExp is the exponent for on-chain fee fractions.
	PercentagePrecisionExp int32 = 6
)

// QuoteMarketIndex is the market index of the quote asset itself. Historical
// price lookups for this market short-circuit to a fixed unit price.
const QuoteMarketIndex = 0

// UnitPrice returns the raw fixed-point representation of a price of 1
// (one quote unit per unit of asset) at price precision.
func UnitPrice() decimal.Decimal {
	return decimal.New(1, PricePrecisionExp)
}

// PercentagePrecision is 10^PercentagePrecisionExp as a decimal.
func PercentagePrecision() decimal.Decimal {
	return decimal.New(1, PercentagePrecisionExp)
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
