// Package data provides market snapshot sources for the backtester:
// a deterministic synthetic generator, a CSV loader and an Alpha Vantage client.
package data

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/eddiefleurent/condor_backtest/internal/models"
	"github.com/eddiefleurent/condor_backtest/internal/util"
)

const (
	expirationHour = 16 // 4pm UTC close used for synthetic and vendor expirations
	dateLayout     = "2006-01-02"
)

// ContractParams describes a synthetic contract to price.
type ContractParams struct {
	Expiration      time.Time
	Now             time.Time
	Underlying      string
	Type            models.OptionType
	Strike          float64
	UnderlyingPrice float64
	ImpliedVol      float64
	RiskFreeRate    float64 // recorded only, the pricing rule ignores rates
}

// NewSyntheticContract prices a contract with a simple intrinsic plus time
// value rule. Time value falls 0.10 per point away from the money, from 3.00
// down to a 0.50 floor; expired contracts keep the floor. The spread is 3% of
// price with a one-cent minimum.
func NewSyntheticContract(p ContractParams) models.OptionsContract {
	dte := int(p.Expiration.Sub(p.Now) / (24 * time.Hour))
	if dte < 0 {
		dte = 0
	}

	var intrinsic float64
	if p.Type == models.OptionTypeCall {
		intrinsic = math.Max(p.UnderlyingPrice-p.Strike, 0)
	} else {
		intrinsic = math.Max(p.Strike-p.UnderlyingPrice, 0)
	}

	timeValue := 0.5
	if p.Expiration.After(p.Now) {
		distance := math.Abs(p.Strike - p.UnderlyingPrice)
		timeValue = math.Max(3.0-distance*0.1, 0.5)
	}

	price := math.Max(intrinsic+timeValue, 0.01)
	spread := math.Max(price*0.03, 0.01)
	bid := math.Max(price-spread/2, 0.01)
	ask := price + spread/2

	return models.OptionsContract{
		Underlying:        p.Underlying,
		Type:              p.Type,
		Strike:            p.Strike,
		Expiration:        p.Expiration,
		Bid:               util.RoundToTick(bid, util.QuoteTick),
		Ask:               util.RoundToTick(ask, util.QuoteTick),
		LastPrice:         util.RoundToTick(price, util.QuoteTick),
		ImpliedVolatility: p.ImpliedVol,
		OpenInterest:      1000,
		Volume:            100,
		DTE:               dte,
		Timestamp:         p.Now,
	}
}

// NewSyntheticChain builds a call and a put at every strike.
func NewSyntheticChain(
	symbol string, underlyingPrice float64, expiration, now time.Time, strikes []float64, iv float64,
) *models.OptionsChain {
	chain := models.NewOptionsChain(symbol, expiration, underlyingPrice, now)
	for _, strike := range strikes {
		for _, t := range []models.OptionType{models.OptionTypeCall, models.OptionTypePut} {
			chain.AddContract(NewSyntheticContract(ContractParams{
				Underlying:      symbol,
				Type:            t,
				Strike:          strike,
				Expiration:      expiration,
				UnderlyingPrice: underlyingPrice,
				ImpliedVol:      iv,
				Now:             now,
			}))
		}
	}
	return chain
}

// StrikeLadder returns strikes from lo to hi inclusive in steps of interval.
func StrikeLadder(lo, hi, interval float64) []float64 {
	if interval <= 0 || hi < lo {
		return nil
	}
	var strikes []float64
	for s := lo; s <= hi+1e-9; s += interval {
		strikes = append(strikes, s)
	}
	return strikes
}

// SyntheticConfig controls the synthetic market generator.
type SyntheticConfig struct {
	Start          time.Time
	End            time.Time
	Symbol         string
	StartPrice     float64
	DailyVol       float64 // stdev of daily log return
	ImpliedVol     float64
	StrikeInterval float64
	StrikeRange    float64 // strikes span price +/- StrikeRange
	Expirations    int     // weekly expirations listed per snapshot
	Seed           uint64
}

func (c *SyntheticConfig) normalize() {
	if c.Symbol == "" {
		c.Symbol = "SPY"
	}
	if c.StartPrice <= 0 {
		c.StartPrice = 400
	}
	if c.DailyVol <= 0 {
		c.DailyVol = 0.01
	}
	if c.ImpliedVol <= 0 {
		c.ImpliedVol = 0.20
	}
	if c.StrikeInterval <= 0 {
		c.StrikeInterval = 5
	}
	if c.StrikeRange <= 0 {
		c.StrikeRange = 50
	}
	if c.Expirations <= 0 {
		c.Expirations = 2
	}
}

// SyntheticGenerator emits one snapshot per weekday between Start and End
// while walking the underlying price with a seeded random walk. The same
// seed always yields the same series.
type SyntheticGenerator struct {
	rng     *rand.Rand
	current time.Time
	cfg     SyntheticConfig
	price   float64
}

// NewSyntheticGenerator creates a generator positioned at cfg.Start.
func NewSyntheticGenerator(cfg SyntheticConfig) *SyntheticGenerator {
	cfg.normalize()
	return &SyntheticGenerator{
		cfg:     cfg,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		current: cfg.Start,
		price:   cfg.StartPrice,
	}
}

// Next returns the next snapshot, or io.EOF after End.
func (g *SyntheticGenerator) Next(ctx context.Context) (*models.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for isWeekend(g.current) {
		g.current = g.current.AddDate(0, 0, 1)
	}
	if g.current.After(g.cfg.End) {
		return nil, io.EOF
	}

	now := g.current
	snapshot := g.snapshot(now)

	g.price *= math.Exp(g.cfg.DailyVol * g.rng.NormFloat64())
	g.price = util.RoundToTick(g.price, util.QuoteTick)
	g.current = g.current.AddDate(0, 0, 1)

	return snapshot, nil
}

// Snapshots drains the generator.
func (g *SyntheticGenerator) Snapshots() []models.MarketSnapshot {
	var out []models.MarketSnapshot
	for {
		s, err := g.Next(context.Background())
		if err != nil {
			return out
		}
		out = append(out, *s)
	}
}

func (g *SyntheticGenerator) snapshot(now time.Time) *models.MarketSnapshot {
	interval := g.cfg.StrikeInterval
	lo := math.Floor((g.price-g.cfg.StrikeRange)/interval) * interval
	hi := math.Ceil((g.price+g.cfg.StrikeRange)/interval) * interval
	strikes := StrikeLadder(math.Max(lo, interval), hi, interval)

	chains := make(map[string]*models.OptionsChain, g.cfg.Expirations)
	for _, exp := range weeklyExpirations(now, g.cfg.Expirations) {
		chains[exp.Format(dateLayout)] = NewSyntheticChain(g.cfg.Symbol, g.price, exp, now, strikes, g.cfg.ImpliedVol)
	}

	return &models.MarketSnapshot{
		Symbol:            g.cfg.Symbol,
		UnderlyingPrice:   g.price,
		Timestamp:         now,
		Volume:            1_000_000,
		ImpliedVolatility: g.cfg.ImpliedVol,
		Chains:            chains,
	}
}

// weeklyExpirations returns the next n Friday closes not earlier than now.
func weeklyExpirations(now time.Time, n int) []time.Time {
	day := time.Date(now.Year(), now.Month(), now.Day(), expirationHour, 0, 0, 0, time.UTC)
	if day.Before(now) {
		day = day.AddDate(0, 0, 1)
	}
	for day.Weekday() != time.Friday {
		day = day.AddDate(0, 0, 1)
	}
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, day.AddDate(0, 0, 7*i))
	}
	return out
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
