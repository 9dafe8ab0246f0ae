// Package util provides common helpers for quote and strike arithmetic.
package util

import "math"

// QuoteTick is the minimum price increment used for synthetic option quotes.
const QuoteTick = 0.01

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return math.Round(x/tick) * tick
}

// StrikeKey maps a strike price to the integer key used by option chains.
// Sub-integer strikes collapse onto the nearest whole strike.
func StrikeKey(strike float64) int {
	return int(math.Round(strike))
}
