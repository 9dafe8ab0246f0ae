// Package strategy implements the iron condor entry/exit state machine.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/condor_backtest/internal/logging"
	"github.com/eddiefleurent/condor_backtest/internal/models"
)

const (
	// StrategyName tags trades opened by this strategy.
	StrategyName = "IronCondor"
	// LegsPerPosition is the number of contracts in one condor per unit of quantity.
	LegsPerPosition = 4

	shortStrikeOffset = 0.05
	wingWidth         = 10.0
	fallbackWingWidth = 5.0

	zeroDTEReentryGap = 7 * 24 * time.Hour
	reentryGap        = 24 * time.Hour
	timeExitAfter     = 24 * time.Hour
)

// Config holds strategy parameters.
type Config struct {
	Symbol          string  `json:"symbol"`
	DTEThreshold    int     `json:"dte_threshold"`
	WidthPercentage float64 `json:"width_percentage"`
	DeltaTarget     float64 `json:"delta_target"`      // reserved, strike selection is percentage based
	ProfitTargetPct float64 `json:"profit_target_pct"` // 0.50 for 50%
	StopLossPct     float64 `json:"stop_loss_pct"`     // 0.75 for 75%
	ExitDTE         int     `json:"exit_dte"`
	ZeroDTE         bool    `json:"zero_dte"`
	Quantity        int     `json:"quantity"`
}

// DefaultConfig returns the stock SPY zero-DTE configuration.
func DefaultConfig() Config {
	return Config{
		Symbol:          "SPY",
		DTEThreshold:    7,
		WidthPercentage: 0.05,
		DeltaTarget:     0.16,
		ProfitTargetPct: 0.50,
		StopLossPct:     0.75,
		ExitDTE:         0,
		ZeroDTE:         true,
		Quantity:        1,
	}
}

// State is the strategy's mutable decision state. It is owned by a single run.
type State struct {
	Positions    *Registry
	LastSignal   *time.Time
	CurrentPrice float64
}

// NewState creates an empty state.
func NewState() *State {
	return &State{Positions: NewRegistry()}
}

// SignalKind distinguishes entry from exit signals.
type SignalKind string

const (
	SignalEnter SignalKind = "enter"
	SignalExit  SignalKind = "exit"
)

// Signal is a strategy decision for one chain evaluation.
type Signal struct {
	Timestamp   time.Time
	Position    *models.IronCondorPosition // new position on enter, removed position on exit
	Kind        SignalKind
	PositionID  string
	Reason      models.ExitReason
	ExitPremium float64
}

// IronCondor evaluates chains against a Config.
type IronCondor struct {
	logger logrus.FieldLogger
	config Config
}

// NewIronCondor creates a strategy. A zero quantity defaults to 1.
func NewIronCondor(config Config, logger logrus.FieldLogger) *IronCondor {
	if config.Quantity <= 0 {
		config.Quantity = 1
	}
	return &IronCondor{config: config, logger: logging.OrDiscard(logger)}
}

// Config returns the strategy configuration.
func (s *IronCondor) Config() Config {
	return s.config
}

// Evaluate inspects one chain and returns at most one signal. Entry is only
// attempted with an empty registry; a successful entry returns immediately.
// Otherwise the first qualifying open position, in registry order, is removed
// and returned as an exit.
func (s *IronCondor) Evaluate(state *State, chain *models.OptionsChain) *Signal {
	if state.Positions == nil {
		state.Positions = NewRegistry()
	}
	state.CurrentPrice = chain.UnderlyingPrice
	now := chain.Timestamp

	if s.shouldEnter(state, now) {
		position, err := s.buildPosition(chain)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"timestamp":  now,
				"underlying": chain.UnderlyingPrice,
			}).Info("Iron condor entry skipped")
		} else {
			state.Positions.Add(position)
			ts := now
			state.LastSignal = &ts

			s.logger.WithFields(logrus.Fields{
				"position_id": position.ID,
				"premium":     position.EntryPremium,
				"underlying":  chain.UnderlyingPrice,
				"timestamp":   now,
			}).Infof("Iron condor ENTRY: %s", position.Summary())

			return &Signal{
				Kind:       SignalEnter,
				Position:   position,
				PositionID: position.ID,
				Timestamp:  now,
			}
		}
	}

	for _, position := range state.Positions.Positions() {
		reason, ok := s.exitReason(state, position, chain, now)
		if !ok {
			continue
		}

		exitPremium := exitPremium(position, chain)
		state.Positions.Remove(position.ID)

		s.logger.WithFields(logrus.Fields{
			"position_id": position.ID,
			"premium":     exitPremium,
			"pnl":         position.PnL(chain.UnderlyingPrice),
			"reason":      reason.String(),
			"timestamp":   now,
		}).Infof("Iron condor EXIT: %s", position.Summary())

		return &Signal{
			Kind:        SignalExit,
			Position:    position,
			PositionID:  position.ID,
			ExitPremium: exitPremium,
			Reason:      reason,
			Timestamp:   now,
		}
	}

	return nil
}

func (s *IronCondor) shouldEnter(state *State, now time.Time) bool {
	if !state.Positions.IsEmpty() {
		return false
	}
	if state.LastSignal == nil {
		return true
	}
	gap := reentryGap
	if s.config.ZeroDTE {
		gap = zeroDTEReentryGap
	}
	return now.Sub(*state.LastSignal) > gap
}

// exitReason applies the exit triggers in precedence order.
func (s *IronCondor) exitReason(
	state *State, p *models.IronCondorPosition, chain *models.OptionsChain, now time.Time,
) (models.ExitReason, bool) {
	profitPct := p.ProfitPercentage(chain.UnderlyingPrice)

	switch {
	case profitPct >= s.config.ProfitTargetPct*100:
		return models.ExitProfitTarget, true
	case profitPct <= -s.config.StopLossPct*100:
		return models.ExitStopLoss, true
	case p.DaysToExpiration(now) <= s.config.ExitDTE:
		return models.ExitDTE, true
	case state.LastSignal != nil && now.Sub(*state.LastSignal) > timeExitAfter:
		return models.ExitTime, true
	}
	return "", false
}

// exitPremium prices the closing debit from the chain's current quotes,
// falling back to the entry quote for any leg no longer listed.
func exitPremium(p *models.IronCondorPosition, chain *models.OptionsChain) float64 {
	quote := func(entry models.OptionsContract) models.OptionsContract {
		if c := chain.Get(entry.Type, entry.Strike); c != nil {
			return *c
		}
		return entry
	}
	sc := quote(p.ShortCall)
	lc := quote(p.LongCall)
	sp := quote(p.ShortPut)
	lp := quote(p.LongPut)
	return (sc.Ask + sp.Ask - lc.Bid - lp.Bid) * float64(p.Quantity)
}

func (s *IronCondor) buildPosition(chain *models.OptionsChain) (*models.IronCondorPosition, error) {
	price := chain.UnderlyingPrice
	callStrikes := chain.Strikes(models.OptionTypeCall)
	putStrikes := chain.Strikes(models.OptionTypePut)

	targetCall := math.Round(price * (1 + shortStrikeOffset))
	targetPut := math.Round(price * (1 - shortStrikeOffset))

	scStrike, okCall := FindClosestStrike(callStrikes, targetCall)
	spStrike, okPut := FindClosestStrike(putStrikes, targetPut)
	if !okCall || !okPut {
		return nil, fmt.Errorf("%w: no short strikes near call %.0f / put %.0f",
			ErrStrikeNotFound, targetCall, targetPut)
	}

	lcStrike, ok := FindClosestStrike(callStrikes, scStrike+wingWidth)
	if !ok {
		lcStrike = scStrike + fallbackWingWidth
	}
	lpStrike, ok := FindClosestStrike(putStrikes, spStrike-wingWidth)
	if !ok {
		lpStrike = spStrike - fallbackWingWidth
	}

	s.logger.WithFields(logrus.Fields{
		"short_call": scStrike,
		"long_call":  lcStrike,
		"short_put":  spStrike,
		"long_put":   lpStrike,
	}).Debug("Resolved iron condor strikes")

	sc := chain.GetCall(scStrike)
	lc := chain.GetCall(lcStrike)
	sp := chain.GetPut(spStrike)
	lp := chain.GetPut(lpStrike)
	if sc == nil || lc == nil || sp == nil || lp == nil {
		return nil, fmt.Errorf("%w: %gC/%gC %gP/%gP", ErrStrikeNotFound,
			scStrike, lcStrike, spStrike, lpStrike)
	}

	position, err := models.NewIronCondorPosition(s.config.Symbol, *sc, *lc, *sp, *lp,
		s.config.Quantity, chain.Timestamp)
	if err != nil {
		return nil, err
	}
	if position.EntryPremium <= 0 {
		return nil, fmt.Errorf("%w: premium %.2f", ErrNonCreditEntry, position.EntryPremium)
	}
	return position, nil
}
