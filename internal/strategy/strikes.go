package strategy

import "math"

// FindClosestStrike returns the strike nearest to target. Strikes must be in
// ascending order; on an exact tie the lower strike wins. ok is false only
// when strikes is empty.
func FindClosestStrike(strikes []int, target float64) (strike float64, ok bool) {
	if len(strikes) == 0 {
		return 0, false
	}
	best := strikes[0]
	bestDist := math.Abs(float64(best) - target)
	for _, s := range strikes[1:] {
		if d := math.Abs(float64(s) - target); d < bestDist {
			best, bestDist = s, d
		}
	}
	return float64(best), true
}
