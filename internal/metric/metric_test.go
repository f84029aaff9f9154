package metric

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-scanner/internal/models"
	"github.com/vault-scanner/internal/types"
)

func snapshotAt(ts int64, baseValue, netDeposits int64) models.VaultSnapshot {
	return models.VaultSnapshot{
		Ts:                    ts,
		TotalAccountBaseValue: decimal.NewFromInt(baseValue),
		NetDeposits:           decimal.NewFromInt(netDeposits),
	}
}

func TestValuePerShare_ZeroShares(t *testing.T) {
	result := ValuePerShare(decimal.NewFromInt(1_000_000), decimal.Zero)
	assert.True(t, result.IsZero(), "zero shares must value at zero, got %s", result)
}

func TestValuePerShare(t *testing.T) {
	// 2000 raw value over 1000 raw shares = 2 value per whole share
	value := decimal.NewFromInt(2000)
	shares := decimal.NewFromInt(1000)

	perShare := ValuePerShare(value, shares)
	assert.Equal(t, 2.0, ToFloat(perShare, types.SharesPrecisionExp))
}

func TestFindClosestSnapshot_Empty(t *testing.T) {
	assert.Nil(t, FindClosestSnapshot(nil, time.Now().Unix()))
}

func TestFindClosestSnapshot_PrefersNearestWhenNoExactDay(t *testing.T) {
	now := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC).Unix()
	snapshots := []models.VaultSnapshot{
		snapshotAt(now-10*OneDaySeconds, 1000, 1000),
		snapshotAt(now-6*OneDaySeconds, 1005, 1000),
		snapshotAt(now-1*OneDaySeconds, 1010, 1000),
	}

	// For a 7-day window the -6d snapshot is nearest to the target, not the
	// older -10d or the newer -1d one.
	found := FindClosestSnapshot(snapshots, now-SevenDaysSeconds)
	require.NotNil(t, found)
	assert.Equal(t, now-6*OneDaySeconds, found.Ts)
}

func TestFindClosestSnapshot_ExactUTCDayWins(t *testing.T) {
	// Target lands just after midnight on Jan 24. A snapshot one hour before
	// the target sits on Jan 23; a snapshot 23 hours after it sits on Jan 24.
	// The calendar-day match wins despite being far more distant in seconds.
	target := time.Date(2024, 1, 24, 0, 30, 0, 0, time.UTC).Unix()
	sameDay := target + 23*60*60
	snapshots := []models.VaultSnapshot{
		snapshotAt(target-60*60, 1005, 1000),
		snapshotAt(sameDay, 1002, 1000),
	}

	found := FindClosestSnapshot(snapshots, target)
	require.NotNil(t, found)
	assert.Equal(t, sameDay, found.Ts)
}

func TestCalcApy_FeeOnlyOnGains(t *testing.T) {
	// +10% gross over exactly one year with a 20% performance fee nets 8%.
	apy := CalcApy(1.0, 1.1, 365, 0.2)
	assert.InDelta(t, 0.08, apy, 1e-9)

	// A loss passes through undiminished: no fee reduces it.
	apy = CalcApy(1.0, 0.9, 365, 0.2)
	assert.InDelta(t, -0.1, apy, 1e-9)
}

func TestCalcApy_DegenerateInputs(t *testing.T) {
	assert.Zero(t, CalcApy(0, 1.1, 30, 0.2))
	assert.Zero(t, CalcApy(1.0, 0, 30, 0.2))
	assert.Zero(t, CalcApy(1.0, 1.1, 0, 0.2))
	// Total loss cannot be annualized.
	assert.Zero(t, CalcApy(1.0, 1e-12, 30, 0))
}

func TestCalcApy_Annualizes(t *testing.T) {
	// +1% over ~36.5 days compounds to (1.01)^10 - 1 annually.
	apy := CalcApy(1.0, 1.01, 36.5, 0)
	assert.InDelta(t, 0.10462212541120453, apy, 1e-9)
}

func TestComputePeriodApys_EmptyHistory(t *testing.T) {
	apys := ComputePeriodApys(nil, types.SharesPrecisionExp, time.Now().Unix(), 0.2, 1.5, false)
	assert.Zero(t, apys.Apy7D)
	assert.Zero(t, apys.Apy30D)
	assert.Zero(t, apys.Apy90D)
}

func TestMaxDailyDrawdown_SingleLossDay(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	snapshots := []models.VaultSnapshot{
		snapshotAt(now-2*OneDaySeconds, 1000, 1000),
		snapshotAt(now-1*OneDaySeconds, 1010, 1000),
		snapshotAt(now, 990, 1000),
	}

	// PnL goes 0 -> +10 -> -10: the loss day delta is -20 against a value of
	// 990, so the divisor is 990 - (-20) = 1010.
	dd := MaxDailyDrawdown(snapshots, false)
	assert.InDelta(t, -20.0/1010.0, dd, 1e-12)
}

func TestMaxDailyDrawdown_UnsortedInput(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	snapshots := []models.VaultSnapshot{
		snapshotAt(now, 990, 1000),
		snapshotAt(now-2*OneDaySeconds, 1000, 1000),
		snapshotAt(now-1*OneDaySeconds, 1010, 1000),
	}

	dd := MaxDailyDrawdown(snapshots, false)
	assert.InDelta(t, -20.0/1010.0, dd, 1e-12)
}

func TestMaxDailyDrawdown_DepositOnLossDay(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	// A 500 deposit lands on the loss day: value rises to 1480 while PnL
	// falls by 20. The divisor is the value before the loss, 1480 + 20.
	snapshots := []models.VaultSnapshot{
		snapshotAt(now-OneDaySeconds, 1000, 1000),
		snapshotAt(now, 1480, 1500),
	}

	dd := MaxDailyDrawdown(snapshots, false)
	assert.InDelta(t, -20.0/1500.0, dd, 1e-12)
}

func TestMaxDailyDrawdown_QuoteValueUsesNotionalDeposits(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	netQuote := decimal.NewFromInt(2000)

	first := models.VaultSnapshot{
		Ts:                     now - OneDaySeconds,
		TotalAccountQuoteValue: decimal.NewFromInt(2000),
		NetDeposits:            decimal.NewFromInt(1000),
		NetQuoteDeposits:       &netQuote,
	}
	second := models.VaultSnapshot{
		Ts:                     now,
		TotalAccountQuoteValue: decimal.NewFromInt(1900),
		NetDeposits:            decimal.NewFromInt(1000),
		NetQuoteDeposits:       &netQuote,
	}

	// Quote PnL: 0 -> -100; divisor 1900 + 100.
	dd := MaxDailyDrawdown([]models.VaultSnapshot{first, second}, true)
	assert.InDelta(t, -100.0/2000.0, dd, 1e-12)
}

func TestMaxDailyDrawdown_TooFewSnapshots(t *testing.T) {
	assert.Zero(t, MaxDailyDrawdown(nil, false))
	assert.Zero(t, MaxDailyDrawdown([]models.VaultSnapshot{snapshotAt(0, 100, 100)}, false))
}

func TestCapacityPct(t *testing.T) {
	pct := CapacityPct(decimal.NewFromInt(50), decimal.NewFromInt(200))
	assert.InDelta(t, 25.0, pct, 1e-12)

	assert.Zero(t, CapacityPct(decimal.NewFromInt(50), decimal.Zero))
}

func TestMaxDailyDrawdown_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	snapshotsFromValues := func(values []int64) []models.VaultSnapshot {
		snapshots := make([]models.VaultSnapshot, len(values))
		for i, v := range values {
			snapshots[i] = snapshotAt(int64(i)*OneDaySeconds, v, 0)
		}
		return snapshots
	}

	properties.Property("drawdown is never positive", prop.ForAll(
		func(values []int64) bool {
			return MaxDailyDrawdown(snapshotsFromValues(values), false) <= 0
		},
		gen.SliceOf(gen.Int64Range(0, 1_000_000)),
	))

	properties.Property("non-decreasing PnL has zero drawdown", prop.ForAll(
		func(deltas []int64) bool {
			values := make([]int64, len(deltas))
			total := int64(0)
			for i, d := range deltas {
				total += d
				values[i] = total
			}
			return MaxDailyDrawdown(snapshotsFromValues(values), false) == 0
		},
		gen.SliceOf(gen.Int64Range(0, 10_000)),
	))

	properties.TestingRun(t)
}
