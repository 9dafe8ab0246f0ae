// Package report renders backtest results as text tables.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/eddiefleurent/condor_backtest/internal/backtest"
)

const timeLayout = "2006-01-02 15:04"

// WriteMetrics renders the summary statistics of a run.
func WriteMetrics(w io.Writer, m backtest.Metrics) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoWrapText(false)

	table.AppendBulk([][]string{
		{"Initial Capital", "$" + Float(m.InitialCapital, 2)},
		{"Final Capital", "$" + Float(m.FinalCapital, 2)},
		{"Total Return", Float(m.TotalReturnPct, 2) + "%"},
		{"Annualized Return", Float(m.AnnualizedReturnPct, 2) + "%"},
		{"Max Drawdown", Float(m.MaxDrawdownPct, 2) + "%"},
		{"Sharpe Ratio", Float(m.SharpeRatio, 2)},
		{"Sortino Ratio", Float(m.SortinoRatio, 2)},
		{"Total Trades", strconv.Itoa(m.TotalTrades)},
		{"Winning Trades", strconv.Itoa(m.WinningTrades)},
		{"Losing Trades", strconv.Itoa(m.LosingTrades)},
		{"Win Rate", Float(m.WinRatePct, 2) + "%"},
		{"Avg Profit per Win", "$" + Float(m.AvgProfitPerWin, 2)},
		{"Avg Loss per Loss", "$" + Float(m.AvgLossPerLoss, 2)},
		{"Profit Factor", Float(m.ProfitFactor, 2)},
		{"Avg Holding Period", Float(m.AvgHoldingDays, 2) + " days"},
	})
	table.Render()
}

// WriteTrades renders one row per trade in ledger order.
func WriteTrades(w io.Writer, trades []backtest.Trade) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Entry", "Exit", "Status", "Reason", "Strikes", "Credit", "Debit", "Qty", "P/L"})
	table.SetAutoWrapText(false)

	for _, t := range trades {
		exit, reason := "-", "-"
		if !t.IsOpen() {
			exit = t.ExitTime.Format(timeLayout)
			if r, ok := t.Metadata[backtest.MetaExitReason].(string); ok {
				reason = r
			}
		}
		table.Append([]string{
			shortID(t.ID),
			t.EntryTime.Format(timeLayout),
			exit,
			t.Status(),
			reason,
			strikes(t),
			Float(t.EntryPrice, 2),
			Float(t.ExitPrice, 2),
			strconv.Itoa(t.Quantity),
			Float(t.Profit(), 2),
		})
	}
	table.SetFooter([]string{"", "", "", "", "", "", "", "", "Total", Float(totalProfit(trades), 2)})
	table.Render()
}

// Float formats v with prec decimals, spelling out +Inf, -Inf and NaN.
func Float(v float64, prec int) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// strikes lists long put / short put / short call / long call.
func strikes(t backtest.Trade) string {
	get := func(key string) float64 {
		v, _ := t.Metadata[key].(float64)
		return v
	}
	return fmt.Sprintf("%g/%g/%g/%g",
		get(backtest.MetaLongPutStrike), get(backtest.MetaShortPutStrike),
		get(backtest.MetaShortCallStrike), get(backtest.MetaLongCallStrike))
}

func totalProfit(trades []backtest.Trade) float64 {
	var total float64
	for _, t := range trades {
		total += t.Profit()
	}
	return total
}
