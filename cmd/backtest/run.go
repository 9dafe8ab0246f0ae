package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/condor_backtest/internal/backtest"
	"github.com/eddiefleurent/condor_backtest/internal/config"
	"github.com/eddiefleurent/condor_backtest/internal/dashboard"
	"github.com/eddiefleurent/condor_backtest/internal/data"
	"github.com/eddiefleurent/condor_backtest/internal/logging"
	"github.com/eddiefleurent/condor_backtest/internal/models"
	"github.com/eddiefleurent/condor_backtest/internal/report"
	"github.com/eddiefleurent/condor_backtest/internal/strategy"
)

const shutdownTimeout = 10 * time.Second

// symbolRun is the outcome of backtesting one underlying.
type symbolRun struct {
	result *backtest.Result
	symbol string
}

func newRunCmd(opts *options, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the backtest and print metrics and trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			return execute(ctx, opts, out)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "", "Override data.source (synthetic, csv, alphavantage)")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "Serve results over HTTP until interrupted")
	cmd.Flags().BoolVar(&opts.trades, "trades", true, "Print the trade ledger")
	return cmd
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.source != "" {
		cfg.Data.Source = strings.ToLower(opts.source)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg, nil
}

func execute(ctx context.Context, opts *options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	runs, err := backtestAll(ctx, cfg, logger)
	if err != nil {
		return err
	}

	for _, r := range runs {
		fmt.Fprintf(out, "\n===== Backtest Results: %s =====\n", r.symbol)
		report.WriteMetrics(out, r.result.Metrics)
		if opts.trades && len(r.result.Trades) > 0 {
			report.WriteTrades(out, r.result.Trades)
		}
	}

	if opts.serve || cfg.Dashboard.Enabled {
		return serve(ctx, cfg, runs[0].result, logger)
	}
	return nil
}

// backtestAll runs the strategy once per underlying found in the data, in
// order of first appearance.
func backtestAll(ctx context.Context, cfg *config.Config, logger *logrus.Logger) ([]symbolRun, error) {
	snapshots, err := loadSnapshots(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("source %s produced no snapshots", cfg.Data.Source)
	}

	groups, order := groupBySymbol(snapshots, cfg.Strategy.Symbol)
	runs := make([]symbolRun, 0, len(order))
	for _, symbol := range order {
		stratCfg := cfg.StrategyConfig()
		stratCfg.Symbol = symbol
		log := logger.WithField("symbol", symbol)

		runner := backtest.NewRunner(cfg.BacktestConfig(), strategy.NewIronCondor(stratCfg, log), log)
		result, err := runner.RunSnapshots(ctx, groups[symbol])
		if err != nil {
			return nil, fmt.Errorf("backtesting %s: %w", symbol, err)
		}
		runs = append(runs, symbolRun{symbol: symbol, result: result})
	}
	return runs, nil
}

func loadSnapshots(ctx context.Context, cfg *config.Config, logger *logrus.Logger) ([]models.MarketSnapshot, error) {
	switch cfg.Data.Source {
	case config.SourceCSV:
		return data.LoadCSV(cfg.Data.CSVPath)
	case config.SourceAlphaVantage:
		client := data.NewAlphaVantageClient(cfg.AlphaVantageConfig(), logger)
		return client.FetchAll(ctx, cfg.Data.AlphaVantage.Tickers)
	default:
		return data.NewSyntheticGenerator(cfg.SyntheticConfig()).Snapshots(), nil
	}
}

// groupBySymbol splits snapshots per underlying, keeping arrival order
// within each group. Snapshots without a symbol belong to fallback.
func groupBySymbol(snapshots []models.MarketSnapshot, fallback string) (map[string][]models.MarketSnapshot, []string) {
	groups := make(map[string][]models.MarketSnapshot)
	var order []string
	for _, s := range snapshots {
		symbol := s.Symbol
		if symbol == "" {
			symbol = fallback
		}
		if _, ok := groups[symbol]; !ok {
			order = append(order, symbol)
		}
		groups[symbol] = append(groups[symbol], s)
	}
	return groups, order
}

func serve(ctx context.Context, cfg *config.Config, result *backtest.Result, logger *logrus.Logger) error {
	server := dashboard.NewServer(dashboard.Config{
		Port:      cfg.Dashboard.Port,
		AuthToken: cfg.Dashboard.AuthToken,
	}, result, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard server: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping dashboard...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
		return nil
	}
}
