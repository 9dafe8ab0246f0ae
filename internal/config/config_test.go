package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var today = time.Date(2024, 7, 1, 13, 45, 0, 0, time.UTC)

func TestLoad(t *testing.T) {
	configPath := filepath.Join("..", "..", "config.yaml.example")
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected config to load successfully from example file, got error: %v", err)
	}
	if cfg.Data.Source != SourceSynthetic {
		t.Errorf("Expected synthetic source, got %q", cfg.Data.Source)
	}
	if got := cfg.StartDate(); !got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected start date %v", got)
	}
	if cfg.Data.AlphaVantage.Timeout != 30*time.Second {
		t.Errorf("Expected 30s vendor timeout, got %v", cfg.Data.AlphaVantage.Timeout)
	}
	if len(cfg.Data.AlphaVantage.Tickers) != 9 {
		t.Errorf("Expected 9 tickers, got %d", len(cfg.Data.AlphaVantage.Tickers))
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_FromTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "strategy:\n  symbol: QQQ\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Strategy.Symbol != "QQQ" {
		t.Errorf("Expected QQQ, got %s", cfg.Strategy.Symbol)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse([]byte("{}"), today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantEnd := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.EndDate().Equal(wantEnd) {
		t.Errorf("EndDate = %v, want %v", cfg.EndDate(), wantEnd)
	}
	if want := wantEnd.AddDate(0, 0, -defaultLookbackDays); !cfg.StartDate().Equal(want) {
		t.Errorf("StartDate = %v, want %v", cfg.StartDate(), want)
	}

	bt := cfg.BacktestConfig()
	if bt.InitialCapital != defaultCapital {
		t.Errorf("InitialCapital = %v", bt.InitialCapital)
	}
	if bt.CommissionPerContract != defaultCommission {
		t.Errorf("CommissionPerContract = %v", bt.CommissionPerContract)
	}

	st := cfg.StrategyConfig()
	if st.Symbol != "SPY" || st.DTEThreshold != 7 || st.Quantity != 1 {
		t.Errorf("unexpected strategy defaults: %+v", st)
	}
	if st.ProfitTargetPct != 0.5 || st.StopLossPct != 0.75 || st.WidthPercentage != 0.05 {
		t.Errorf("unexpected strategy thresholds: %+v", st)
	}
	if !st.ZeroDTE {
		t.Error("ZeroDTE should default to true")
	}

	if cfg.Data.Source != SourceSynthetic {
		t.Errorf("Source = %q", cfg.Data.Source)
	}
	if len(cfg.Data.AlphaVantage.Tickers) != 1 || cfg.Data.AlphaVantage.Tickers[0] != "SPY" {
		t.Errorf("Tickers should default to the strategy symbol, got %v", cfg.Data.AlphaVantage.Tickers)
	}
	if cfg.Dashboard.Port != defaultPort {
		t.Errorf("Port = %d", cfg.Dashboard.Port)
	}
}

func TestParse_ZeroDTEExplicitFalse(t *testing.T) {
	cfg, err := parse([]byte("strategy:\n  zero_dte: false\n"), today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StrategyConfig().ZeroDTE {
		t.Error("explicit zero_dte: false must be kept")
	}
}

func TestParse_LookbackWindow(t *testing.T) {
	raw := "backtest:\n  end_date: \"2024-03-31\"\n  lookback_days: 30\n"
	cfg, err := parse([]byte(raw), today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC); !cfg.StartDate().Equal(want) {
		t.Errorf("StartDate = %v, want %v", cfg.StartDate(), want)
	}
	if got := cfg.BacktestConfig().ElapsedDays(); got != 30 {
		t.Errorf("ElapsedDays = %v, want 30", got)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("CONDOR_TEST_AV_KEY", "secret-key")
	raw := "data:\n  source: AlphaVantage\n  alpha_vantage:\n    api_key: \"${CONDOR_TEST_AV_KEY}\"\n    max_concurrency: 3\n"
	cfg, err := parse([]byte(raw), today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Data.Source != SourceAlphaVantage {
		t.Errorf("source should be normalized to lower case, got %q", cfg.Data.Source)
	}
	av := cfg.AlphaVantageConfig()
	if av.APIKey != "secret-key" {
		t.Errorf("APIKey = %q", av.APIKey)
	}
	if av.MaxConcurrency != 3 {
		t.Errorf("MaxConcurrency = %d", av.MaxConcurrency)
	}
}

func TestParse_SyntheticConfigWindow(t *testing.T) {
	raw := "backtest:\n  start_date: \"2024-01-01\"\n  end_date: \"2024-02-01\"\ndata:\n  synthetic:\n    seed: 9\n    start_price: 410\n"
	cfg, err := parse([]byte(raw), today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sc := cfg.SyntheticConfig()
	if sc.Seed != 9 || sc.StartPrice != 410 || sc.Symbol != "SPY" {
		t.Errorf("unexpected synthetic config: %+v", sc)
	}
	if !sc.Start.Equal(cfg.StartDate()) || !sc.End.Equal(cfg.EndDate()) {
		t.Errorf("synthetic window %v..%v does not match backtest window", sc.Start, sc.End)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"unknown field", "strategy:\n  delta: 16\n", "parsing config"},
		{"bad end date", "backtest:\n  end_date: 03/31/2024\n", "backtest.end_date"},
		{"bad start date", "backtest:\n  start_date: soon\n", "backtest.start_date"},
		{"start after end", "backtest:\n  start_date: \"2024-05-01\"\n  end_date: \"2024-04-01\"\n", "backtest"},
		{"negative capital", "backtest:\n  initial_capital: -5\n", "backtest"},
		{"negative lookback", "backtest:\n  lookback_days: -1\n", "lookback_days"},
		{"negative profit target", "strategy:\n  profit_target_pct: -0.5\n", "profit_target_pct"},
		{"negative stop loss", "strategy:\n  stop_loss_pct: -1\n", "stop_loss_pct"},
		{"negative exit dte", "strategy:\n  exit_dte: -2\n", "exit_dte"},
		{"negative quantity", "strategy:\n  quantity: -1\n", "quantity"},
		{"csv without path", "data:\n  source: csv\n", "csv_path"},
		{"vendor without key", "data:\n  source: alphavantage\n", "api_key"},
		{"unknown source", "data:\n  source: bloomberg\n", "data.source"},
		{"port out of range", "dashboard:\n  port: 70000\n", "dashboard.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.raw), today)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}
