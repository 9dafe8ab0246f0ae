package backtest

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

// closedTrade builds a trade whose Profit() equals profit over the given days.
func closedTrade(profit float64, days int) Trade {
	return Trade{
		ID:         fmt.Sprintf("t-%v-%d", profit, days),
		EntryPrice: 0,
		ExitPrice:  profit / contractMultiplier,
		Quantity:   1,
		EntryTime:  t0,
		ExitTime:   t0.Add(time.Duration(days) * 24 * time.Hour),
		Metadata:   map[string]any{MetaStatus: StatusClosed},
	}
}

func ledger(days int, profits ...float64) []Trade {
	out := make([]Trade, 0, len(profits))
	for _, p := range profits {
		out = append(out, closedTrade(p, days))
	}
	return out
}

func TestCalculateMetrics_EmptyLedger(t *testing.T) {
	m := CalculateMetrics(10_000, 10_500, nil, 365)

	assert.InDelta(t, 5.0, m.TotalReturnPct, 1e-9)
	assert.InDelta(t, 5.0, m.AnnualizedReturnPct, 1e-9)
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.ProfitFactor)
	assert.Zero(t, m.SharpeRatio)
	assert.Zero(t, m.SortinoRatio)
	assert.Zero(t, m.MaxDrawdownPct)
	assert.Zero(t, m.WinRatePct)
	assert.Zero(t, m.AvgHoldingDays)
}

func TestCalculateMetrics_Returns(t *testing.T) {
	m := CalculateMetrics(10_000, 11_000, nil, 365)
	assert.InDelta(t, 10.0, m.TotalReturnPct, 1e-9)
	assert.InDelta(t, 10.0, m.AnnualizedReturnPct, 1e-9)

	m = CalculateMetrics(10_000, 11_000, nil, 730)
	assert.InDelta(t, (math.Sqrt(1.1)-1)*100, m.AnnualizedReturnPct, 1e-9)
}

func TestCalculateMetrics_WinsPlusLossesEqualsTotal(t *testing.T) {
	ledgers := [][]Trade{
		nil,
		ledger(1, 100),
		ledger(1, -100),
		ledger(1, 0, 0, 0),
		ledger(2, 100, -50, 0, 25, -75),
	}
	for i, l := range ledgers {
		m := CalculateMetrics(10_000, 10_000, l, 30)
		assert.Equal(t, m.TotalTrades, m.WinningTrades+m.LosingTrades, "ledger %d", i)
		assert.Equal(t, len(l), m.TotalTrades, "ledger %d", i)
	}
}

func TestCalculateMetrics_ZeroProfitIsLoss(t *testing.T) {
	m := CalculateMetrics(10_000, 10_000, ledger(1, 0), 30)
	assert.Equal(t, 0, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.Zero(t, m.AvgLossPerLoss)
}

func TestCalculateMetrics_TradeStatistics(t *testing.T) {
	m := CalculateMetrics(10_000, 10_000, ledger(2, 100, -50, 300, -150), 30)

	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 2, m.LosingTrades)
	assert.InDelta(t, 50.0, m.WinRatePct, 1e-9)
	assert.InDelta(t, 200.0, m.AvgProfitPerWin, 1e-9)
	assert.InDelta(t, 100.0, m.AvgLossPerLoss, 1e-9)
	assert.InDelta(t, 2.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 2.0, m.AvgHoldingDays, 1e-9)
}

func TestCalculateMetrics_ProfitFactorEdges(t *testing.T) {
	tests := []struct {
		name   string
		trades []Trade
		want   float64
	}{
		{"only wins is +Inf", ledger(1, 100, 50), math.Inf(1)},
		{"only zero trades is 0", ledger(1, 0, 0), 0},
		{"no trades is 0", nil, 0},
		{"only losses is 0", ledger(1, -10), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := CalculateMetrics(10_000, 10_000, tt.trades, 30)
			assert.Equal(t, tt.want, m.ProfitFactor)
		})
	}
}

func TestCalculateMetrics_MaxDrawdown(t *testing.T) {
	tests := []struct {
		name    string
		profits []float64
		want    float64
	}{
		{"non-decreasing capital has no drawdown", []float64{100, 0, 50}, 0},
		{"single loss from initial", []float64{-500}, 5},
		{"peak then trough", []float64{100, -300, 50}, 300.0 / 10_100 * 100},
		{"deepest of two dips", []float64{-100, 200, -400, 100}, 400.0 / 10_100 * 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := CalculateMetrics(10_000, 10_000, ledger(1, tt.profits...), 30)
			assert.InDelta(t, tt.want, m.MaxDrawdownPct, 1e-9)
			assert.GreaterOrEqual(t, m.MaxDrawdownPct, 0.0)
		})
	}
}

func TestCalculateMetrics_DrawdownFollowsLedgerOrder(t *testing.T) {
	a := CalculateMetrics(10_000, 10_000, ledger(1, -100, 100), 30)
	b := CalculateMetrics(10_000, 10_000, ledger(1, 100, -100), 30)
	assert.InDelta(t, 1.0, a.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, 100.0/10_100*100, b.MaxDrawdownPct, 1e-9)
}

func TestCalculateMetrics_SharpeAndSortino(t *testing.T) {
	returns := []float64{0.02, -0.01, -0.03}
	m := CalculateMetrics(10_000, 10_000, ledger(1, 200, -100, -300), 30)

	mean := (returns[0] + returns[1] + returns[2]) / 3
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / 3)
	assert.InDelta(t, mean/std*math.Sqrt(252), m.SharpeRatio, 1e-9)

	// Downside deviation is the population deviation of -0.01 and -0.03.
	assert.InDelta(t, mean/0.01*math.Sqrt(252), m.SortinoRatio, 1e-9)
}

func TestCalculateMetrics_SortinoEdges(t *testing.T) {
	// A single negative return has zero deviation; positive mean gives +Inf.
	m := CalculateMetrics(10_000, 10_000, ledger(1, 100, -50, 200), 30)
	assert.True(t, math.IsInf(m.SortinoRatio, 1))
	assert.Greater(t, m.SharpeRatio, 0.0)

	// No downside and non-positive mean gives 0.
	m = CalculateMetrics(10_000, 10_000, ledger(1, 0, 0), 30)
	assert.Zero(t, m.SortinoRatio)
	assert.Zero(t, m.SharpeRatio)

	// Identical positive returns: zero deviation everywhere.
	m = CalculateMetrics(10_000, 10_000, ledger(1, 100, 100), 30)
	assert.Zero(t, m.SharpeRatio)
	assert.True(t, math.IsInf(m.SortinoRatio, 1))
}

func TestCalculateMetrics_ZeroHoldingDaysIsNonFinite(t *testing.T) {
	m := CalculateMetrics(10_000, 10_000, ledger(0, 100), 30)
	assert.Zero(t, m.SharpeRatio)
	assert.True(t, math.IsInf(m.SortinoRatio, 1))
	assert.Zero(t, m.AvgHoldingDays)
}

func TestCalculateMetrics_ZeroElapsedDays(t *testing.T) {
	m := CalculateMetrics(10_000, 11_000, nil, 0)
	assert.True(t, math.IsInf(m.AnnualizedReturnPct, 1))
}

func TestCalculateMetrics_IsPure(t *testing.T) {
	trades := ledger(3, 120, -40, 75, -10, 0)
	a := CalculateMetrics(25_000, 25_145, trades, 90)
	b := CalculateMetrics(25_000, 25_145, trades, 90)
	assert.Equal(t, a, b)
	assert.Len(t, trades, 5)
}

func TestTrade_Accessors(t *testing.T) {
	tr := Trade{
		EntryPrice: 1.25,
		ExitPrice:  0.50,
		Quantity:   2,
		EntryTime:  t0,
		ExitTime:   t0.Add(47 * time.Hour),
		Metadata:   map[string]any{MetaStatus: StatusOpen},
	}
	assert.InDelta(t, -150.0, tr.Profit(), 1e-9)
	assert.Equal(t, 1, tr.HoldingDays())
	assert.True(t, tr.IsOpen())
	assert.Equal(t, StatusOpen, tr.Status())

	assert.Equal(t, "", Trade{}.Status())
}
