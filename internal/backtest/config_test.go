package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	base := testConfig()
	assert.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }},
		{"negative commission", func(c *Config) { c.CommissionPerContract = -1 }},
		{"negative slippage", func(c *Config) { c.SlippagePct = -0.1 }},
		{"missing start", func(c *Config) { c.StartDate = time.Time{} }},
		{"end before start", func(c *Config) { c.EndDate = c.StartDate.AddDate(0, 0, -1) }},
		{"end equals start", func(c *Config) { c.EndDate = c.StartDate }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfig_ElapsedDays(t *testing.T) {
	c := Config{
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 30.0, c.ElapsedDays())

	d := DefaultConfig(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 365.0, d.ElapsedDays())
	assert.NoError(t, d.Validate())
}

func TestEquityCurve(t *testing.T) {
	c := NewEquityCurve()
	c.Record(t0, 1)
	c.Record(t0.Add(time.Minute), 2)
	c.Record(t0.In(time.FixedZone("EST", -5*3600)), 3)

	pts := c.Points()
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 3.0, pts[0].Equity, "same instant in another zone overwrites")
	pts[1].Equity = 99
	assert.Equal(t, 2.0, c.Points()[1].Equity)
}
