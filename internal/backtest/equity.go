package backtest

import "time"

// EquityPoint is capital recorded at one snapshot time.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// EquityCurve keeps one point per distinct timestamp in first-arrival order.
// Recording an existing timestamp overwrites its value in place.
type EquityCurve struct {
	index  map[int64]int
	points []EquityPoint
}

// NewEquityCurve creates an empty curve.
func NewEquityCurve() *EquityCurve {
	return &EquityCurve{index: make(map[int64]int)}
}

// Record sets equity at ts.
func (c *EquityCurve) Record(ts time.Time, equity float64) {
	key := ts.UnixNano()
	if i, ok := c.index[key]; ok {
		c.points[i].Equity = equity
		return
	}
	c.index[key] = len(c.points)
	c.points = append(c.points, EquityPoint{Timestamp: ts, Equity: equity})
}

// Len returns the number of distinct timestamps.
func (c *EquityCurve) Len() int {
	return len(c.points)
}

// Points returns a copy of the curve.
func (c *EquityCurve) Points() []EquityPoint {
	out := make([]EquityPoint, len(c.points))
	copy(out, c.points)
	return out
}
