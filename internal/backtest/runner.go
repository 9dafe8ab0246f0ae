package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/condor_backtest/internal/logging"
	"github.com/eddiefleurent/condor_backtest/internal/models"
	"github.com/eddiefleurent/condor_backtest/internal/strategy"
)

// Strategy decides entries and exits for one chain at a time.
type Strategy interface {
	Evaluate(state *strategy.State, chain *models.OptionsChain) *strategy.Signal
}

// Result is the outcome of one run.
type Result struct {
	Trades       []Trade       `json:"trades"`
	EquityCurve  []EquityPoint `json:"equity_curve"`
	Metrics      Metrics       `json:"metrics"`
	FinalCapital float64       `json:"final_capital"`
	Processed    int           `json:"processed"`
	Skipped      int           `json:"skipped"`
}

// Runner drives a strategy over a snapshot stream.
type Runner struct {
	strategy Strategy
	logger   logrus.FieldLogger
	config   Config
}

// NewRunner creates a runner.
func NewRunner(config Config, strat Strategy, logger logrus.FieldLogger) *Runner {
	return &Runner{config: config, strategy: strat, logger: logging.OrDiscard(logger)}
}

// RunSnapshots runs over an in-memory ordered slice.
func (r *Runner) RunSnapshots(ctx context.Context, snapshots []models.MarketSnapshot) (*Result, error) {
	return r.Run(ctx, NewHistoricalSource(snapshots))
}

// run holds the state owned by a single Run call.
type run struct {
	state     *strategy.State
	equity    *EquityCurve
	open      map[string]*Trade
	closed    []Trade
	openOrder []string
	capital   float64
	processed int
	skipped   int
}

// Run consumes the source to exhaustion. Snapshots are processed strictly in
// arrival order; only a source failure other than io.EOF aborts the run.
func (r *Runner) Run(ctx context.Context, src Source) (*Result, error) {
	r.logger.WithFields(logrus.Fields{
		"start": r.config.StartDate.Format("2006-01-02"),
		"end":   r.config.EndDate.Format("2006-01-02"),
	}).Info("Starting backtest")

	st := &run{
		state:   strategy.NewState(),
		equity:  NewEquityCurve(),
		open:    make(map[string]*Trade),
		capital: r.config.InitialCapital,
	}

	for {
		snapshot, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading snapshot %d: %w", st.processed+1, err)
		}
		r.process(st, snapshot)
	}

	trades := st.closed
	for _, id := range st.openOrder {
		t := st.open[id]
		t.Metadata[MetaStatus] = StatusOpen
		trades = append(trades, *t)
	}

	metrics := CalculateMetrics(r.config.InitialCapital, st.capital, trades, r.config.ElapsedDays())

	r.logger.WithFields(logrus.Fields{
		"processed":     st.processed,
		"skipped":       st.skipped,
		"trades":        len(trades),
		"final_capital": st.capital,
	}).Info("Backtest completed")

	return &Result{
		Metrics:      metrics,
		FinalCapital: st.capital,
		Trades:       trades,
		EquityCurve:  st.equity.Points(),
		Processed:    st.processed,
		Skipped:      st.skipped,
	}, nil
}

func (r *Runner) process(st *run, snapshot *models.MarketSnapshot) {
	st.processed++
	st.equity.Record(snapshot.Timestamp, st.capital)

	key, ok := snapshot.NearestExpiration()
	if !ok {
		st.skipped++
		r.logger.WithError(ErrNoChainAvailable).WithField("timestamp", snapshot.Timestamp).Debug("Skipping snapshot")
		return
	}
	chain := snapshot.Chain(key)

	signal := r.strategy.Evaluate(st.state, chain)
	if signal == nil {
		return
	}

	switch signal.Kind {
	case strategy.SignalEnter:
		r.enter(st, snapshot, chain, signal)
	case strategy.SignalExit:
		r.exit(st, signal)
	}
}

func (r *Runner) commission(quantity int) float64 {
	return r.config.CommissionPerContract * float64(quantity) * strategy.LegsPerPosition
}

func (r *Runner) enter(st *run, snapshot *models.MarketSnapshot, chain *models.OptionsChain, signal *strategy.Signal) {
	p := signal.Position
	commission := r.commission(p.Quantity)
	net := p.EntryPremium - commission
	st.capital += net

	trade := newTrade(snapshot.Symbol, strategy.StrategyName, p, chain.UnderlyingPrice, signal.Timestamp)
	if _, exists := st.open[p.ID]; !exists {
		st.openOrder = append(st.openOrder, p.ID)
	}
	st.open[p.ID] = trade

	r.logger.WithFields(logrus.Fields{
		"position_id": p.ID,
		"premium":     p.EntryPremium,
		"net":         net,
		"timestamp":   signal.Timestamp,
	}).Info("Opened trade")
}

func (r *Runner) exit(st *run, signal *strategy.Signal) {
	trade, ok := st.open[signal.PositionID]
	if !ok {
		r.logger.WithError(ErrOrphanExit).WithField("position_id", signal.PositionID).Warn("Dropping exit signal")
		return
	}
	delete(st.open, signal.PositionID)
	for i, id := range st.openOrder {
		if id == signal.PositionID {
			st.openOrder = append(st.openOrder[:i], st.openOrder[i+1:]...)
			break
		}
	}

	trade.ExitPrice = signal.ExitPremium
	trade.ExitTime = signal.Timestamp
	trade.Metadata[MetaStatus] = StatusClosed
	trade.Metadata[MetaExitPremium] = signal.ExitPremium
	trade.Metadata[MetaExitReason] = string(signal.Reason)

	net := trade.EntryPrice - trade.ExitPrice - r.commission(trade.Quantity)
	st.capital += net

	if signal.Position != nil {
		if err := signal.Position.Close(signal.Timestamp, signal.ExitPremium, signal.Reason); err != nil {
			r.logger.WithError(err).WithField("position_id", signal.PositionID).Warn("Position lifecycle not updated")
		}
	}

	st.closed = append(st.closed, *trade)

	r.logger.WithFields(logrus.Fields{
		"position_id": signal.PositionID,
		"premium":     signal.ExitPremium,
		"net":         net,
		"reason":      signal.Reason.String(),
		"timestamp":   signal.Timestamp,
	}).Info("Closed trade")
}
