package backtest

import (
	"time"

	"github.com/eddiefleurent/condor_backtest/internal/models"
)

// Trade metadata keys.
const (
	MetaStatus          = "status"
	MetaEntryPremium    = "entry_premium"
	MetaExitPremium     = "exit_premium"
	MetaExitReason      = "exit_reason"
	MetaMaxProfit       = "max_profit"
	MetaMaxLoss         = "max_loss"
	MetaShortCallStrike = "short_call_strike"
	MetaLongCallStrike  = "long_call_strike"
	MetaShortPutStrike  = "short_put_strike"
	MetaLongPutStrike   = "long_put_strike"
	MetaUnderlyingPrice = "underlying_price"

	StatusOpen   = "open"
	StatusClosed = "closed"

	contractMultiplier = 100.0
)

// Trade is the ledger record for one position.
type Trade struct {
	EntryTime  time.Time      `json:"entry_time"`
	ExitTime   time.Time      `json:"exit_time"` // equals EntryTime while open
	Metadata   map[string]any `json:"metadata"`
	ID         string         `json:"id"`
	Symbol     string         `json:"symbol"`
	Strategy   string         `json:"strategy"`
	EntryPrice float64        `json:"entry_price"` // entry premium
	ExitPrice  float64        `json:"exit_price"`  // exit premium, 0 while open
	Quantity   int            `json:"quantity"`
}

func newTrade(symbol, strategyName string, p *models.IronCondorPosition, underlying float64, at time.Time) *Trade {
	return &Trade{
		ID:         p.ID,
		Symbol:     symbol,
		Strategy:   strategyName,
		EntryPrice: p.EntryPremium,
		Quantity:   p.Quantity,
		EntryTime:  at,
		ExitTime:   at,
		Metadata: map[string]any{
			MetaStatus:          StatusOpen,
			MetaEntryPremium:    p.EntryPremium,
			MetaMaxProfit:       p.MaxProfit(),
			MetaMaxLoss:         p.MaxLoss(),
			MetaShortCallStrike: p.ShortCall.Strike,
			MetaLongCallStrike:  p.LongCall.Strike,
			MetaShortPutStrike:  p.ShortPut.Strike,
			MetaLongPutStrike:   p.LongPut.Strike,
			MetaUnderlyingPrice: underlying,
		},
	}
}

// Status returns the trade's open/closed flag.
func (t Trade) Status() string {
	s, _ := t.Metadata[MetaStatus].(string)
	return s
}

// IsOpen reports whether the trade was still open at the end of the run.
func (t Trade) IsOpen() bool {
	return t.Status() == StatusOpen
}

// Profit is (exit - entry) x quantity x contract multiplier.
func (t Trade) Profit() float64 {
	return (t.ExitPrice - t.EntryPrice) * float64(t.Quantity) * contractMultiplier
}

// HoldingDays is the whole-day difference between exit and entry.
func (t Trade) HoldingDays() int {
	return int(t.ExitTime.Sub(t.EntryTime) / (24 * time.Hour))
}
