package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ExitReason names the rule that closed a position. Values double as
// lifecycle transition conditions.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "profit_target"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitDTE          ExitReason = "dte_exit"
	ExitTime         ExitReason = "time_exit"
)

// String returns a human-readable label for the reason.
func (r ExitReason) String() string {
	switch r {
	case ExitProfitTarget:
		return "Profit target"
	case ExitStopLoss:
		return "Stop loss"
	case ExitDTE:
		return "DTE exit"
	case ExitTime:
		return "Time exit"
	default:
		return string(r)
	}
}

// IronCondorPosition is a four-leg short iron condor. Legs are the contract
// quotes captured at entry.
type IronCondorPosition struct {
	StateMachine *StateMachine   `json:"-"`
	State        PositionState   `json:"state"`
	EntryTime    time.Time       `json:"entry_time"`
	ExitTime     time.Time       `json:"exit_time,omitempty"`
	ID           string          `json:"id"`
	Underlying   string          `json:"underlying"`
	ExitReason   ExitReason      `json:"exit_reason,omitempty"`
	ShortCall    OptionsContract `json:"short_call"`
	LongCall     OptionsContract `json:"long_call"`
	ShortPut     OptionsContract `json:"short_put"`
	LongPut      OptionsContract `json:"long_put"`
	EntryPremium float64         `json:"entry_premium"` // net credit
	ExitPremium  float64         `json:"exit_premium"`  // net debit, set on close
	Quantity     int             `json:"quantity"`
}

// NewIronCondorPosition builds an open position from four legs. The entry
// premium is computed once: short bids minus long asks, times quantity.
func NewIronCondorPosition(
	underlying string,
	shortCall, longCall, shortPut, longPut OptionsContract,
	quantity int,
	entryTime time.Time,
) (*IronCondorPosition, error) {
	if longCall.Strike <= shortCall.Strike {
		return nil, fmt.Errorf("%w: long call %.2f not above short call %.2f",
			ErrInvalidWings, longCall.Strike, shortCall.Strike)
	}
	if longPut.Strike >= shortPut.Strike {
		return nil, fmt.Errorf("%w: long put %.2f not below short put %.2f",
			ErrInvalidWings, longPut.Strike, shortPut.Strike)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	p := &IronCondorPosition{
		ID:           uuid.New().String(),
		Underlying:   underlying,
		EntryTime:    entryTime,
		ShortCall:    shortCall,
		LongCall:     longCall,
		ShortPut:     shortPut,
		LongPut:      longPut,
		Quantity:     quantity,
		EntryPremium: (shortCall.Bid + shortPut.Bid - longCall.Ask - longPut.Ask) * float64(quantity),
		StateMachine: NewStateMachine(),
		State:        StateIdle,
	}
	if err := p.transition(StateOpen, ConditionEntryFilled, entryTime); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *IronCondorPosition) transition(to PositionState, condition string, at time.Time) error {
	if p.StateMachine == nil {
		p.StateMachine = NewStateMachine()
	}
	if err := p.StateMachine.Transition(to, condition, at); err != nil {
		return fmt.Errorf("position %s state transition failed: %w", p.ID, err)
	}
	p.State = to
	return nil
}

// IsOpen reports whether the position has not been closed.
func (p *IronCondorPosition) IsOpen() bool {
	return p.State == StateOpen
}

// Close records the exit and moves the position to StateClosed.
func (p *IronCondorPosition) Close(at time.Time, exitPremium float64, reason ExitReason) error {
	if err := p.transition(StateClosed, string(reason), at); err != nil {
		return err
	}
	p.ExitTime = at
	p.ExitPremium = exitPremium
	p.ExitReason = reason
	return nil
}

// CallSpreadWidth returns long call strike minus short call strike.
func (p *IronCondorPosition) CallSpreadWidth() float64 {
	return p.LongCall.Strike - p.ShortCall.Strike
}

// PutSpreadWidth returns short put strike minus long put strike.
func (p *IronCondorPosition) PutSpreadWidth() float64 {
	return p.ShortPut.Strike - p.LongPut.Strike
}

// MaxProfit is the entry credit.
func (p *IronCondorPosition) MaxProfit() float64 {
	return p.EntryPremium
}

// MaxLoss is the wider spread times quantity, less the entry credit.
func (p *IronCondorPosition) MaxLoss() float64 {
	qty := float64(p.Quantity)
	return math.Max(p.CallSpreadWidth()*qty, p.PutSpreadWidth()*qty) - p.EntryPremium
}

// PnL returns realized P&L for a closed position, otherwise the intrinsic
// mark-to-market value at the given underlying price.
func (p *IronCondorPosition) PnL(underlyingPrice float64) float64 {
	if p.State == StateClosed {
		return p.EntryPremium - p.ExitPremium
	}
	return p.unrealizedPnL(underlyingPrice)
}

func (p *IronCondorPosition) unrealizedPnL(s float64) float64 {
	qty := float64(p.Quantity)

	var callSide float64
	switch {
	case s >= p.LongCall.Strike:
		callSide = -p.CallSpreadWidth() * qty
	case s > p.ShortCall.Strike:
		callSide = -(s - p.ShortCall.Strike) * qty
	}

	var putSide float64
	switch {
	case s <= p.LongPut.Strike:
		putSide = -p.PutSpreadWidth() * qty
	case s < p.ShortPut.Strike:
		putSide = -(p.ShortPut.Strike - s) * qty
	}

	return p.EntryPremium + callSide + putSide
}

// ProfitPercentage returns P&L as a percentage of max profit, or 0 when
// the position was not opened for a credit.
func (p *IronCondorPosition) ProfitPercentage(underlyingPrice float64) float64 {
	maxProfit := p.MaxProfit()
	if maxProfit <= 0 {
		return 0
	}
	return p.PnL(underlyingPrice) / maxProfit * 100
}

// DaysToExpiration counts whole days from now to the short call expiration,
// truncated toward zero.
func (p *IronCondorPosition) DaysToExpiration(now time.Time) int {
	return int(p.ShortCall.Expiration.Sub(now) / (24 * time.Hour))
}

// Summary returns a one-line description of the position.
func (p *IronCondorPosition) Summary() string {
	return fmt.Sprintf("IC %s: %gC/%gC %gP/%gP @%.2f profit=%.2f max_loss=%.2f",
		p.Underlying,
		p.ShortCall.Strike, p.LongCall.Strike,
		p.ShortPut.Strike, p.LongPut.Strike,
		p.EntryPremium, p.MaxProfit(), p.MaxLoss())
}

// Validate checks that the position's fields agree with its lifecycle state.
func (p *IronCondorPosition) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("position id is empty")
	}
	if p.LongCall.Strike <= p.ShortCall.Strike || p.LongPut.Strike >= p.ShortPut.Strike {
		return ErrInvalidWings
	}
	if p.StateMachine != nil {
		if p.StateMachine.GetCurrentState() != p.State {
			return fmt.Errorf("state mismatch: position %s, state machine %s",
				p.State, p.StateMachine.GetCurrentState())
		}
		if err := p.StateMachine.ValidateStateConsistency(); err != nil {
			return err
		}
	}

	switch p.State {
	case StateOpen:
		if p.EntryTime.IsZero() {
			return fmt.Errorf("open position missing entry time")
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("open position has non-positive quantity %d", p.Quantity)
		}
		if !p.ExitTime.IsZero() || p.ExitReason != "" {
			return fmt.Errorf("open position has exit fields set")
		}
	case StateClosed:
		if p.ExitTime.IsZero() {
			return fmt.Errorf("closed position missing exit time")
		}
		if p.ExitTime.Before(p.EntryTime) {
			return fmt.Errorf("exit time %s before entry time %s", p.ExitTime, p.EntryTime)
		}
		if p.ExitReason == "" {
			return fmt.Errorf("closed position missing exit reason")
		}
	case StateIdle:
	default:
		return fmt.Errorf("unknown position state %q", p.State)
	}
	return nil
}
