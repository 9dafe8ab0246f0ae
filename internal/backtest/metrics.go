package backtest

import (
	"math"

	"github.com/montanaflynn/stats"
)

const tradingDaysPerYear = 252

// Metrics summarizes a finished run. Ratios may be +Inf or NaN for
// degenerate ledgers; callers must tolerate non-finite values.
type Metrics struct {
	InitialCapital      float64 `json:"initial_capital"`
	FinalCapital        float64 `json:"final_capital"`
	TotalReturnPct      float64 `json:"total_return_pct"`
	AnnualizedReturnPct float64 `json:"annualized_return_pct"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	WinRatePct          float64 `json:"win_rate_pct"`
	AvgProfitPerWin     float64 `json:"avg_profit_per_win"`
	AvgLossPerLoss      float64 `json:"avg_loss_per_loss"`
	ProfitFactor        float64 `json:"profit_factor"`
	AvgHoldingDays      float64 `json:"avg_holding_days"`
	TotalTrades         int     `json:"total_trades"`
	WinningTrades       int     `json:"winning_trades"`
	LosingTrades        int     `json:"losing_trades"`
}

// CalculateMetrics derives statistics from a ledger. It is a pure function
// of its inputs; the trade fold runs in ledger order.
func CalculateMetrics(initial, final float64, trades []Trade, elapsedDays float64) Metrics {
	m := Metrics{
		InitialCapital:      initial,
		FinalCapital:        final,
		TotalReturnPct:      (final - initial) / initial * 100,
		AnnualizedReturnPct: (math.Pow(final/initial, 365/elapsedDays) - 1) * 100,
		TotalTrades:         len(trades),
	}

	var grossProfit, grossLoss, holdingDays float64
	current, peak := initial, initial
	dailyReturns := make([]float64, 0, len(trades))

	for _, t := range trades {
		profit := t.Profit()
		if profit > 0 {
			m.WinningTrades++
			grossProfit += profit
		} else {
			m.LosingTrades++
			grossLoss += math.Abs(profit)
		}

		current += profit
		if current > peak {
			peak = current
		} else if current < peak {
			if dd := (peak - current) / peak * 100; dd > m.MaxDrawdownPct {
				m.MaxDrawdownPct = dd
			}
		}

		days := float64(t.HoldingDays())
		holdingDays += days
		dailyReturns = append(dailyReturns, profit/initial/days)
	}

	if m.TotalTrades > 0 {
		m.WinRatePct = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
		m.AvgHoldingDays = holdingDays / float64(m.TotalTrades)
	}
	if m.WinningTrades > 0 {
		m.AvgProfitPerWin = grossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLossPerLoss = grossLoss / float64(m.LosingTrades)
	}

	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}

	m.SharpeRatio, m.SortinoRatio = riskRatios(dailyReturns)
	return m
}

// riskRatios annualizes mean daily return over population deviation (Sharpe)
// and over downside deviation (Sortino), with a zero risk-free rate.
func riskRatios(dailyReturns []float64) (sharpe, sortino float64) {
	if len(dailyReturns) == 0 {
		return 0, 0
	}
	annualize := math.Sqrt(tradingDaysPerYear)

	mean, _ := stats.Mean(dailyReturns)
	std, _ := stats.StandardDeviationPopulation(dailyReturns)
	if std > 0 {
		sharpe = mean / std * annualize
	}

	var downside []float64
	for _, r := range dailyReturns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	var downsideDev float64
	if len(downside) > 0 {
		downsideDev, _ = stats.StandardDeviationPopulation(downside)
	}

	switch {
	case downsideDev > 0:
		sortino = mean / downsideDev * annualize
	case mean > 0:
		sortino = math.Inf(1)
	}
	return sharpe, sortino
}
