// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/condor_backtest/internal/backtest"
	"github.com/eddiefleurent/condor_backtest/internal/data"
	"github.com/eddiefleurent/condor_backtest/internal/logging"
	"github.com/eddiefleurent/condor_backtest/internal/strategy"
)

const (
	dateLayout          = "2006-01-02"
	defaultLookbackDays = 365
	defaultCapital      = 100_000.0
	defaultCommission   = 0.65
	defaultPort         = 8080
)

// Data source names.
const (
	SourceSynthetic    = "synthetic"
	SourceCSV          = "csv"
	SourceAlphaVantage = "alphavantage"
)

// Config represents the complete application configuration.
type Config struct {
	Backtest  BacktestConfig  `yaml:"backtest"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Data      DataConfig      `yaml:"data"`
	Logging   logging.Config  `yaml:"logging"`
	Dashboard DashboardConfig `yaml:"dashboard"`

	start time.Time
	end   time.Time
}

// BacktestConfig defines the capital and date window of a run.
type BacktestConfig struct {
	StartDate             string  `yaml:"start_date"` // YYYY-MM-DD, empty = end - lookback
	EndDate               string  `yaml:"end_date"`   // YYYY-MM-DD, empty = today
	LookbackDays          int     `yaml:"lookback_days"`
	InitialCapital        float64 `yaml:"initial_capital"`
	CommissionPerContract float64 `yaml:"commission_per_contract"`
	SlippagePct           float64 `yaml:"slippage_pct"`
}

// StrategyConfig defines iron condor parameters.
type StrategyConfig struct {
	Symbol          string  `yaml:"symbol"`
	DTEThreshold    int     `yaml:"dte_threshold"`
	WidthPercentage float64 `yaml:"width_percentage"`
	DeltaTarget     float64 `yaml:"delta_target"`
	ProfitTargetPct float64 `yaml:"profit_target_pct"` // fraction, 0.50 = 50%
	StopLossPct     float64 `yaml:"stop_loss_pct"`     // fraction, 0.75 = 75%
	ExitDTE         int     `yaml:"exit_dte"`
	ZeroDTE         *bool   `yaml:"zero_dte"` // defaults to true
	Quantity        int     `yaml:"quantity"`
}

// DataConfig selects and configures the snapshot source.
type DataConfig struct {
	Source       string             `yaml:"source"` // synthetic | csv | alphavantage
	CSVPath      string             `yaml:"csv_path"`
	Synthetic    SyntheticConfig    `yaml:"synthetic"`
	AlphaVantage AlphaVantageConfig `yaml:"alpha_vantage"`
}

// SyntheticConfig defines the generated market.
type SyntheticConfig struct {
	Seed           uint64  `yaml:"seed"`
	StartPrice     float64 `yaml:"start_price"`
	DailyVol       float64 `yaml:"daily_vol"`
	ImpliedVol     float64 `yaml:"implied_vol"`
	StrikeInterval float64 `yaml:"strike_interval"`
	StrikeRange    float64 `yaml:"strike_range"`
	Expirations    int     `yaml:"expirations"`
}

// AlphaVantageConfig defines vendor API access.
type AlphaVantageConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Tickers        []string      `yaml:"tickers"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// DashboardConfig defines the results API server.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	raw, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return parse(raw, time.Now().UTC())
}

func parse(raw []byte, now time.Time) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(raw))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.normalize()
	if err := config.resolveDates(now); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// normalize fills unset values with defaults
func (c *Config) normalize() {
	if c.Backtest.LookbackDays == 0 {
		c.Backtest.LookbackDays = defaultLookbackDays
	}
	if c.Backtest.InitialCapital == 0 {
		c.Backtest.InitialCapital = defaultCapital
	}
	if c.Backtest.CommissionPerContract == 0 {
		c.Backtest.CommissionPerContract = defaultCommission
	}

	defaults := strategy.DefaultConfig()
	if c.Strategy.Symbol == "" {
		c.Strategy.Symbol = defaults.Symbol
	}
	if c.Strategy.DTEThreshold == 0 {
		c.Strategy.DTEThreshold = defaults.DTEThreshold
	}
	if c.Strategy.WidthPercentage == 0 {
		c.Strategy.WidthPercentage = defaults.WidthPercentage
	}
	if c.Strategy.DeltaTarget == 0 {
		c.Strategy.DeltaTarget = defaults.DeltaTarget
	}
	if c.Strategy.ProfitTargetPct == 0 {
		c.Strategy.ProfitTargetPct = defaults.ProfitTargetPct
	}
	if c.Strategy.StopLossPct == 0 {
		c.Strategy.StopLossPct = defaults.StopLossPct
	}
	if c.Strategy.ZeroDTE == nil {
		zeroDTE := defaults.ZeroDTE
		c.Strategy.ZeroDTE = &zeroDTE
	}
	if c.Strategy.Quantity == 0 {
		c.Strategy.Quantity = defaults.Quantity
	}

	if c.Data.Source == "" {
		c.Data.Source = SourceSynthetic
	}
	c.Data.Source = strings.ToLower(c.Data.Source)
	if len(c.Data.AlphaVantage.Tickers) == 0 {
		c.Data.AlphaVantage.Tickers = []string{c.Strategy.Symbol}
	}

	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultPort
	}
}

func (c *Config) resolveDates(now time.Time) error {
	var err error
	c.end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if c.Backtest.EndDate != "" {
		if c.end, err = time.Parse(dateLayout, c.Backtest.EndDate); err != nil {
			return fmt.Errorf("backtest.end_date must be YYYY-MM-DD: %w", err)
		}
	}
	c.start = c.end.AddDate(0, 0, -c.Backtest.LookbackDays)
	if c.Backtest.StartDate != "" {
		if c.start, err = time.Parse(dateLayout, c.Backtest.StartDate); err != nil {
			return fmt.Errorf("backtest.start_date must be YYYY-MM-DD: %w", err)
		}
	}
	return nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Backtest.LookbackDays < 0 {
		return fmt.Errorf("backtest.lookback_days must be >= 0")
	}
	if err := c.BacktestConfig().Validate(); err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	if c.Strategy.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}
	if c.Strategy.ProfitTargetPct <= 0 {
		return fmt.Errorf("strategy.profit_target_pct must be > 0")
	}
	if c.Strategy.StopLossPct <= 0 {
		return fmt.Errorf("strategy.stop_loss_pct must be > 0")
	}
	if c.Strategy.ExitDTE < 0 {
		return fmt.Errorf("strategy.exit_dte must be >= 0")
	}
	if c.Strategy.Quantity <= 0 {
		return fmt.Errorf("strategy.quantity must be > 0")
	}

	switch c.Data.Source {
	case SourceSynthetic:
	case SourceCSV:
		if c.Data.CSVPath == "" {
			return fmt.Errorf("data.csv_path is required for the csv source")
		}
	case SourceAlphaVantage:
		if c.Data.AlphaVantage.APIKey == "" {
			return fmt.Errorf("data.alpha_vantage.api_key is required for the alphavantage source")
		}
	default:
		return fmt.Errorf("data.source must be one of %s, %s, %s",
			SourceSynthetic, SourceCSV, SourceAlphaVantage)
	}

	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be between 1 and 65535")
	}

	return nil
}

// StartDate returns the resolved start of the backtest window.
func (c *Config) StartDate() time.Time { return c.start }

// EndDate returns the resolved end of the backtest window.
func (c *Config) EndDate() time.Time { return c.end }

// BacktestConfig converts to the runner configuration.
func (c *Config) BacktestConfig() backtest.Config {
	return backtest.Config{
		StartDate:             c.start,
		EndDate:               c.end,
		InitialCapital:        c.Backtest.InitialCapital,
		CommissionPerContract: c.Backtest.CommissionPerContract,
		SlippagePct:           c.Backtest.SlippagePct,
	}
}

// StrategyConfig converts to the strategy configuration.
func (c *Config) StrategyConfig() strategy.Config {
	zeroDTE := true
	if c.Strategy.ZeroDTE != nil {
		zeroDTE = *c.Strategy.ZeroDTE
	}
	return strategy.Config{
		Symbol:          c.Strategy.Symbol,
		DTEThreshold:    c.Strategy.DTEThreshold,
		WidthPercentage: c.Strategy.WidthPercentage,
		DeltaTarget:     c.Strategy.DeltaTarget,
		ProfitTargetPct: c.Strategy.ProfitTargetPct,
		StopLossPct:     c.Strategy.StopLossPct,
		ExitDTE:         c.Strategy.ExitDTE,
		ZeroDTE:         zeroDTE,
		Quantity:        c.Strategy.Quantity,
	}
}

// SyntheticConfig converts to the synthetic generator configuration over the
// backtest window.
func (c *Config) SyntheticConfig() data.SyntheticConfig {
	s := c.Data.Synthetic
	return data.SyntheticConfig{
		Symbol:         c.Strategy.Symbol,
		Start:          c.start,
		End:            c.end,
		Seed:           s.Seed,
		StartPrice:     s.StartPrice,
		DailyVol:       s.DailyVol,
		ImpliedVol:     s.ImpliedVol,
		StrikeInterval: s.StrikeInterval,
		StrikeRange:    s.StrikeRange,
		Expirations:    s.Expirations,
	}
}

// AlphaVantageConfig converts to the vendor client configuration.
func (c *Config) AlphaVantageConfig() data.AlphaVantageConfig {
	av := c.Data.AlphaVantage
	return data.AlphaVantageConfig{
		APIKey:         av.APIKey,
		BaseURL:        av.BaseURL,
		Timeout:        av.Timeout,
		MaxRetries:     av.MaxRetries,
		MaxConcurrency: av.MaxConcurrency,
	}
}
