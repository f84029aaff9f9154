package metric

import (
	"github.com/shopspring/decimal"

	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/types"
)

// DepositorBalance returns a depositor's share of the vault's total value in
// raw base units. An empty vault values every position at zero.
func DepositorBalance(userShares, totalShares, totalValue decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() {
		return decimal.Zero
	}
	return userShares.Mul(totalValue).Div(totalShares).Truncate(0)
}

// DepositorBalanceAfterFees reduces a depositor's balance by the performance
// fee payable on gains above the high-water mark. profitShare is the fee
// fraction at percentage precision. Losses are never taxed.
func DepositorBalanceAfterFees(balance, netDeposits, cumulativeProfitShareAmount, profitShare decimal.Decimal) decimal.Decimal {
	highWaterMark := cumulativeProfitShareAmount.Add(netDeposits)

	taxableGains := balance.Sub(highWaterMark)
	if !taxableGains.IsPositive() {
		return balance
	}

	feesPayable := taxableGains.Mul(profitShare).Div(types.PercentagePrecision()).Truncate(0)
	return balance.Sub(feesPayable)
}

// NotionalNetDeposits sums a depositor's history into net notional deposits:
// deposits add, withdrawals subtract, everything else is ignored.
func NotionalNetDeposits(records []models.DepositorRecord) decimal.Decimal {
	net := decimal.Zero
	for _, record := range records {
		switch record.Action {
		case types.ActionDeposit:
			net = net.Add(record.NotionalValue)
		case types.ActionWithdraw:
			net = net.Sub(record.NotionalValue)
		}
	}
	return net
}

// WithdrawalState classifies a depositor's pending withdrawal.
type WithdrawalState int

const (
	// WithdrawalUnRequested means no withdrawal request has been made.
	WithdrawalUnRequested WithdrawalState = iota
	// WithdrawalRequested means a request exists but the redeem period has
	// not elapsed.
	WithdrawalRequested
	// WithdrawalAvailable means the requested shares can be withdrawn.
	WithdrawalAvailable
)

// DeriveWithdrawalState classifies a withdrawal request from its timestamp,
// the requested shares, and the vault's redeem period.
func DeriveWithdrawalState(lastRequestTs int64, lastRequestShares decimal.Decimal, redeemPeriodSeconds, now int64) WithdrawalState {
	if !lastRequestShares.IsPositive() {
		return WithdrawalUnRequested
	}

	availableTs := lastRequestTs + redeemPeriodSeconds
	if now < availableTs {
		return WithdrawalRequested
	}
	return WithdrawalAvailable
}
