// Command condor-backtest replays options snapshots through the weekly iron
// condor strategy and reports performance.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/condor_backtest/internal/config"
	"github.com/eddiefleurent/condor_backtest/internal/data"
)

type options struct {
	configPath string
	envFile    string
	source     string
	output     string
	serve      bool
	trades     bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "condor-backtest",
		Short:        "Backtest a weekly iron condor strategy on options snapshots",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnv(opts.envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before the config")

	root.AddCommand(newRunCmd(opts, out), newValidateCmd(opts, out), newGenerateCmd(opts, out))
	return root
}

// loadEnv loads KEY=VALUE pairs without overriding variables already set.
// A missing default file is not an error.
func loadEnv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

func newValidateCmd(opts *options, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file and print the resolved run window",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Configuration OK\n  symbol:  %s\n  source:  %s\n  window:  %s to %s (%v days)\n",
				cfg.Strategy.Symbol, cfg.Data.Source,
				cfg.StartDate().Format("2006-01-02"), cfg.EndDate().Format("2006-01-02"),
				cfg.BacktestConfig().ElapsedDays())
			return nil
		},
	}
}

func newGenerateCmd(opts *options, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the synthetic market for the configured window as CSV",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			snapshots := data.NewSyntheticGenerator(cfg.SyntheticConfig()).Snapshots()

			w := out
			if opts.output != "" && opts.output != "-" {
				f, err := os.Create(opts.output) // #nosec G304 -- user-chosen output path
				if err != nil {
					return fmt.Errorf("creating output: %w", err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			return data.WriteCSV(w, snapshots)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "CSV output path, - for stdout")
	return cmd
}
