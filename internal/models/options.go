package models

import (
	"sort"
	"time"

	"github.com/eddiefleurent/condor_backtest/internal/util"
)

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
)

// Greeks holds option sensitivities as delivered by the data source.
// They are carried through unchanged; strike selection does not read them.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"` // per day
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// OptionsContract is a single option quote at a point in time.
type OptionsContract struct {
	Expiration        time.Time  `json:"expiration"`
	Timestamp         time.Time  `json:"timestamp"` // quote time
	Underlying        string     `json:"underlying"`
	Type              OptionType `json:"type"`
	Greeks            Greeks     `json:"greeks"`
	Strike            float64    `json:"strike"`
	Bid               float64    `json:"bid"`
	Ask               float64    `json:"ask"`
	LastPrice         float64    `json:"last_price"`
	ImpliedVolatility float64    `json:"implied_volatility"` // decimal, 0.20 = 20%
	OpenInterest      int64      `json:"open_interest"`
	Volume            int64      `json:"volume"`
	DTE               int        `json:"dte"`
}

// Mid returns the midpoint of the bid/ask quote.
func (c OptionsContract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// OptionsChain holds every contract for one underlying and one expiration.
// Contracts are keyed by util.StrikeKey, so sub-integer strikes are not
// separately addressable.
type OptionsChain struct {
	Expiration      time.Time               `json:"expiration"`
	Timestamp       time.Time               `json:"timestamp"`
	Calls           map[int]OptionsContract `json:"calls"`
	Puts            map[int]OptionsContract `json:"puts"`
	Underlying      string                  `json:"underlying"`
	UnderlyingPrice float64                 `json:"underlying_price"`
}

// NewOptionsChain creates an empty chain.
func NewOptionsChain(underlying string, expiration time.Time, underlyingPrice float64, ts time.Time) *OptionsChain {
	return &OptionsChain{
		Underlying:      underlying,
		Expiration:      expiration,
		UnderlyingPrice: underlyingPrice,
		Timestamp:       ts,
		Calls:           make(map[int]OptionsContract),
		Puts:            make(map[int]OptionsContract),
	}
}

// AddContract stores a contract on the side matching its type.
// A later contract with the same strike key replaces the earlier one.
func (c *OptionsChain) AddContract(contract OptionsContract) {
	if c.Calls == nil {
		c.Calls = make(map[int]OptionsContract)
	}
	if c.Puts == nil {
		c.Puts = make(map[int]OptionsContract)
	}
	key := util.StrikeKey(contract.Strike)
	switch contract.Type {
	case OptionTypeCall:
		c.Calls[key] = contract
	case OptionTypePut:
		c.Puts[key] = contract
	}
}

// Contracts returns the strike map for one side of the chain.
func (c *OptionsChain) Contracts(optionType OptionType) map[int]OptionsContract {
	if optionType == OptionTypePut {
		return c.Puts
	}
	return c.Calls
}

// GetCall returns the call at strike, or nil.
func (c *OptionsChain) GetCall(strike float64) *OptionsContract {
	return lookup(c.Calls, strike)
}

// GetPut returns the put at strike, or nil.
func (c *OptionsChain) GetPut(strike float64) *OptionsContract {
	return lookup(c.Puts, strike)
}

// Get returns the contract of the given type at strike, or nil.
func (c *OptionsChain) Get(optionType OptionType, strike float64) *OptionsContract {
	return lookup(c.Contracts(optionType), strike)
}

func lookup(contracts map[int]OptionsContract, strike float64) *OptionsContract {
	contract, ok := contracts[util.StrikeKey(strike)]
	if !ok {
		return nil
	}
	return &contract
}

// Strikes returns the available strike keys for one side in ascending order.
func (c *OptionsChain) Strikes(optionType OptionType) []int {
	contracts := c.Contracts(optionType)
	strikes := make([]int, 0, len(contracts))
	for k := range contracts {
		strikes = append(strikes, k)
	}
	sort.Ints(strikes)
	return strikes
}

// Update moves the chain to a new underlying price and time, restamping
// every contract. Quotes themselves are left as they are.
func (c *OptionsChain) Update(underlyingPrice float64, now time.Time) {
	c.UnderlyingPrice = underlyingPrice
	c.Timestamp = now
	for k, contract := range c.Calls {
		contract.Timestamp = now
		c.Calls[k] = contract
	}
	for k, contract := range c.Puts {
		contract.Timestamp = now
		c.Puts[k] = contract
	}
}

// MarketSnapshot is the market state for one symbol at one instant,
// including every listed expiration.
type MarketSnapshot struct {
	Timestamp         time.Time                `json:"timestamp"`
	Chains            map[string]*OptionsChain `json:"chains"` // expiration id -> chain
	Symbol            string                   `json:"symbol"`
	UnderlyingPrice   float64                  `json:"underlying_price"`
	Volume            float64                  `json:"volume"`
	ImpliedVolatility float64                  `json:"implied_volatility"`
}

// Chain returns the chain for an expiration id, or nil.
func (s *MarketSnapshot) Chain(expiration string) *OptionsChain {
	return s.Chains[expiration]
}

// NearestExpiration returns the id of the chain with the earliest expiration.
// Equal expirations resolve to the lexicographically smallest id.
func (s *MarketSnapshot) NearestExpiration() (string, bool) {
	best := ""
	var bestExp time.Time
	found := false
	for key, chain := range s.Chains {
		if chain == nil {
			continue
		}
		if !found ||
			chain.Expiration.Before(bestExp) ||
			(chain.Expiration.Equal(bestExp) && key < best) {
			best = key
			bestExp = chain.Expiration
			found = true
		}
	}
	return best, found
}

// Advance moves the snapshot and all of its chains to a new price and time.
func (s *MarketSnapshot) Advance(underlyingPrice float64, now time.Time) {
	s.UnderlyingPrice = underlyingPrice
	s.Timestamp = now
	for _, chain := range s.Chains {
		if chain != nil {
			chain.Update(underlyingPrice, now)
		}
	}
}
