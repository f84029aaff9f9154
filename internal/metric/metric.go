// Package metric computes display metrics from vault snapshot and depositor
// record history. Every function here is pure and total over well-formed
// input: malformed input (empty history, zero shares, zero deposits) yields a
// defined zero result instead of an error, since the metrics must always
// render something.
package metric

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/types"
)

const (
	OneDaySeconds     int64 = 24 * 60 * 60
	SevenDaysSeconds  int64 = OneDaySeconds * 7
	ThirtyDaysSeconds int64 = OneDaySeconds * 30
	NinetyDaysSeconds int64 = OneDaySeconds * 90
)

// ValuePerShare returns the value of one whole share in raw units at the
// value's precision. A vault with zero shares outstanding has zero value per
// share; never divide.
func ValuePerShare(totalValue, totalShares decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() {
		return decimal.Zero
	}
	return totalValue.Shift(types.SharesPrecisionExp).Div(totalShares)
}

// ToFloat collapses a raw fixed-point value to a float64 at the given
// precision exponent. Only used at the metric boundary.
func ToFloat(raw decimal.Decimal, precisionExp int32) float64 {
	return raw.Shift(-precisionExp).InexactFloat64()
}

// FindClosestSnapshot locates the snapshot nearest to targetTs: an exact
// UTC-calendar-day match wins, otherwise the snapshot with minimum absolute
// timestamp distance. Returns nil for an empty history.
func FindClosestSnapshot(snapshots []models.VaultSnapshot, targetTs int64) *models.VaultSnapshot {
	if len(snapshots) == 0 {
		return nil
	}

	targetDay := utcDay(targetTs)
	for i := range snapshots {
		if utcDay(snapshots[i].Ts) == targetDay {
			return &snapshots[i]
		}
	}

	closest := &snapshots[0]
	closestDiff := absInt64(snapshots[0].Ts - targetTs)
	for i := range snapshots[1:] {
		diff := absInt64(snapshots[i+1].Ts - targetTs)
		if diff < closestDiff {
			closest = &snapshots[i+1]
			closestDiff = diff
		}
	}
	return closest
}

// CalcApy annualizes the return between two per-share values with
// compounding, net of the performance fee. Fees only apply to profit: a loss
// passes through undiminished. Unavailable values (zero start or end) yield
// zero rather than NaN or infinity.
func CalcApy(startValue, endValue, daysElapsed, perfFeeFraction float64) float64 {
	if startValue == 0 || endValue == 0 || daysElapsed <= 0 {
		return 0
	}

	grossReturn := (endValue - startValue) / startValue
	netReturn := grossReturn
	if grossReturn > 0 {
		netReturn = grossReturn * (1 - perfFeeFraction)
	}

	if 1+netReturn <= 0 {
		// A total (or worse) loss cannot be annualized; the projection is
		// undefined.
		return 0
	}

	return math.Pow(1+netReturn, 365/daysElapsed) - 1
}

// ApyForPeriod computes the annualized return percentage over one trailing
// window. daysElapsed is measured to the matched snapshot, not the nominal
// window length, since an exact-day snapshot may not exist.
func ApyForPeriod(
	snapshots []models.VaultSnapshot,
	precisionExp int32,
	now int64,
	periodSeconds int64,
	perfFeeFraction float64,
	valuePerShareAtEnd float64,
	useQuoteValue bool,
) float64 {
	windowStart := FindClosestSnapshot(snapshots, now-periodSeconds)
	if windowStart == nil {
		return 0
	}

	startValue := snapshotValue(windowStart, useQuoteValue)
	valuePerShareAtStart := ToFloat(ValuePerShare(startValue, windowStart.TotalShares), precisionExp)

	daysElapsed := float64(now-windowStart.Ts) / float64(OneDaySeconds)

	apy := CalcApy(valuePerShareAtStart, valuePerShareAtEnd, daysElapsed, perfFeeFraction)
	return apy * 100
}

// ComputePeriodApys computes the 7/30/90 day trailing APYs.
func ComputePeriodApys(
	snapshots []models.VaultSnapshot,
	precisionExp int32,
	now int64,
	perfFeeFraction float64,
	valuePerShareAtEnd float64,
	useQuoteValue bool,
) models.PeriodApys {
	if len(snapshots) == 0 {
		return models.PeriodApys{}
	}

	return models.PeriodApys{
		Apy7D:  ApyForPeriod(snapshots, precisionExp, now, SevenDaysSeconds, perfFeeFraction, valuePerShareAtEnd, useQuoteValue),
		Apy30D: ApyForPeriod(snapshots, precisionExp, now, ThirtyDaysSeconds, perfFeeFraction, valuePerShareAtEnd, useQuoteValue),
		Apy90D: ApyForPeriod(snapshots, precisionExp, now, NinetyDaysSeconds, perfFeeFraction, valuePerShareAtEnd, useQuoteValue),
	}
}

// MaxDailyDrawdown returns the most negative day-over-day loss fraction in a
// snapshot history, or zero for a monotonically non-decreasing PnL history.
//
// The loss is normalized against the account value before that day's loss
// (value[i] - delta). This is deliberately not value[i-1]: the two differ
// when deposits or withdrawals land on the drawdown day, and changing the
// divisor would silently alter historical drawdown figures.
func MaxDailyDrawdown(snapshots []models.VaultSnapshot, useQuoteValue bool) float64 {
	if len(snapshots) < 2 {
		return 0
	}

	sorted := make([]models.VaultSnapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ts < sorted[j].Ts })

	maxDrawdown := 0.0
	prevPnl := cumulativePnl(&sorted[0], useQuoteValue)

	for i := 1; i < len(sorted); i++ {
		pnl := cumulativePnl(&sorted[i], useQuoteValue)

		if pnl.GreaterThan(prevPnl) {
			// A gain day contributes no drawdown.
			prevPnl = pnl
			continue
		}

		value := snapshotValue(&sorted[i], useQuoteValue)
		delta := pnl.Sub(prevPnl)
		prevPnl = pnl

		if value.IsZero() {
			continue
		}

		divisor := value.Sub(delta)
		if divisor.IsZero() {
			continue
		}

		drawdown := delta.Div(divisor).InexactFloat64()
		if drawdown < maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	return maxDrawdown
}

// CapacityPct returns how much of the vault's configured capacity is in use,
// as a percentage.
func CapacityPct(totalValue, maxCapacity decimal.Decimal) float64 {
	if maxCapacity.IsZero() {
		return 0
	}
	return totalValue.Div(maxCapacity).InexactFloat64() * 100
}

// snapshotValue selects the base or quote total account value per the
// vault's strategy type.
func snapshotValue(snapshot *models.VaultSnapshot, useQuoteValue bool) decimal.Decimal {
	if useQuoteValue {
		return snapshot.TotalAccountQuoteValue
	}
	return snapshot.TotalAccountBaseValue
}

// cumulativePnl is the all-time PnL implied by one snapshot: account value
// minus net deposits. Quote-value PnL uses the notional net deposits when
// the snapshot carries them.
func cumulativePnl(snapshot *models.VaultSnapshot, useQuoteValue bool) decimal.Decimal {
	deposits := snapshot.NetDeposits
	if useQuoteValue && snapshot.NetQuoteDeposits != nil {
		deposits = *snapshot.NetQuoteDeposits
	}
	return snapshotValue(snapshot, useQuoteValue).Sub(deposits)
}

func utcDay(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
