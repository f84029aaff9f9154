package metric

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/types"
)

// CashFlow is one external flow into or out of a depositor's position.
// Deposits are positive flows, withdrawals negative.
type CashFlow struct {
	Ts        int64
	Amount    decimal.Decimal
	Direction types.DepositorAction
}

// CashFlowsFromRecords extracts the deposit/withdraw flows from a depositor's
// record history. Notional-growth vaults flow notional values, everything
// else the base-asset amount.
func CashFlowsFromRecords(records []models.DepositorRecord, useNotional bool) []CashFlow {
	var flows []CashFlow
	for _, record := range records {
		if !record.Action.IsDepositOrWithdraw() {
			continue
		}
		amount := record.Amount
		if useNotional {
			amount = record.NotionalValue
		}
		flows = append(flows, CashFlow{
			Ts:        record.Ts,
			Amount:    amount,
			Direction: record.Action,
		})
	}
	return flows
}

// ModifiedDietz approximates the money-weighted return of a position using
// linear weighting of intermediate cash flows, without iterative
// root-finding. The starting value is taken as zero with the first flow
// treated as the initial investment, since for a freshly-opened position the
// starting value collapses into the flows themselves.
//
// Returns a fraction (0.05 = 5%); degenerate input (no flows, zero or
// negative weighted capital) returns zero.
func ModifiedDietz(endingBalance decimal.Decimal, precisionExp int32, flows []CashFlow, now int64) float64 {
	if len(flows) == 0 {
		return 0
	}

	sorted := make([]CashFlow, len(flows))
	copy(sorted, flows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ts < sorted[j].Ts })

	startTs := sorted[0].Ts
	totalPeriod := now - startTs
	if totalPeriod <= 0 {
		return 0
	}

	netFlow := 0.0
	weightedFlow := 0.0

	for _, flow := range sorted {
		amount := ToFloat(flow.Amount, precisionExp)
		if flow.Direction == types.ActionWithdraw {
			amount = -amount
		}

		// weight is the fraction of the period remaining after the flow; the
		// initial investment carries full weight.
		weight := float64(now-flow.Ts) / float64(totalPeriod)

		netFlow += amount
		weightedFlow += amount * weight
	}

	if weightedFlow <= 0 {
		return 0
	}

	ending := ToFloat(endingBalance, precisionExp)
	return (ending - netFlow) / weightedFlow
}
