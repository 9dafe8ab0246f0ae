// Package backtest replays market snapshots through a strategy, keeps the
// capital ledger and equity curve, and derives performance metrics.
package backtest

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoChainAvailable marks a snapshot without any expiration chain.
	ErrNoChainAvailable = errors.New("no options chain available")
	// ErrOrphanExit marks an exit signal for a position with no open trade.
	ErrOrphanExit = errors.New("exit signal for unknown open trade")
)

// Config holds execution settings for a run.
type Config struct {
	StartDate             time.Time `json:"start_date"`
	EndDate               time.Time `json:"end_date"`
	InitialCapital        float64   `json:"initial_capital"`
	CommissionPerContract float64   `json:"commission_per_contract"`
	SlippagePct           float64   `json:"slippage_pct"` // reserved, not applied to fills
}

// DefaultConfig returns a one-year window ending at now.
func DefaultConfig(now time.Time) Config {
	return Config{
		InitialCapital:        100_000,
		StartDate:             now.AddDate(0, 0, -365),
		EndDate:               now,
		CommissionPerContract: 0.65,
		SlippagePct:           0.05,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %.2f", c.InitialCapital)
	}
	if c.CommissionPerContract < 0 {
		return fmt.Errorf("commission_per_contract must be non-negative, got %.2f", c.CommissionPerContract)
	}
	if c.SlippagePct < 0 {
		return fmt.Errorf("slippage_pct must be non-negative, got %.4f", c.SlippagePct)
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("start_date and end_date are required")
	}
	if !c.EndDate.After(c.StartDate) {
		return fmt.Errorf("end_date %s must be after start_date %s",
			c.EndDate.Format(time.DateOnly), c.StartDate.Format(time.DateOnly))
	}
	return nil
}

// ElapsedDays is the whole number of days in the configured window.
func (c Config) ElapsedDays() float64 {
	return float64(int64(c.EndDate.Sub(c.StartDate) / (24 * time.Hour)))
}
