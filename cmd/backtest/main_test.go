package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/condor_backtest/internal/models"
)

const testConfig = `backtest:
  start_date: "2024-01-01"
  end_date: "2024-03-29"
  initial_capital: 100000
strategy:
  symbol: SPY
data:
  source: synthetic
  csv_path: %q
  synthetic:
    seed: 42
    daily_vol: 0.005
logging:
  level: error
`

func writeConfig(t *testing.T, csvPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testConfig, csvPath)), 0o600))
	return path
}

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	out, err := execRoot(t, "validate", "--config", writeConfig(t, "unused.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK")
	assert.Contains(t, out, "SPY")
	assert.Contains(t, out, "2024-01-01 to 2024-03-29")
}

func TestValidateCmd_MissingConfig(t *testing.T) {
	_, err := execRoot(t, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRunCmd_Synthetic(t *testing.T) {
	out, err := execRoot(t, "run", "--config", writeConfig(t, "unused.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "===== Backtest Results: SPY =====")
	assert.Contains(t, out, "Total Trades")
	assert.Contains(t, out, "Sortino Ratio")
}

func TestGenerateThenRunFromCSV(t *testing.T) {
	csvPath := filepath.Join(t.TempDir(), "quotes.csv")
	cfgPath := writeConfig(t, csvPath)

	_, err := execRoot(t, "generate", "--config", cfgPath, "--output", csvPath)
	require.NoError(t, err)
	info, err := os.Stat(csvPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	synthetic, err := execRoot(t, "run", "--config", cfgPath, "--trades=false")
	require.NoError(t, err)
	fromCSV, err := execRoot(t, "run", "--config", cfgPath, "--source", "CSV", "--trades=false")
	require.NoError(t, err)

	assert.Equal(t, synthetic, fromCSV, "replaying the exported market reproduces the run")
}

func TestRunCmd_BadSourceOverride(t *testing.T) {
	_, err := execRoot(t, "run", "--config", writeConfig(t, "unused.csv"), "--source", "bloomberg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data.source")
}

func TestRunCmd_VendorSourceNeedsKey(t *testing.T) {
	_, err := execRoot(t, "run", "--config", writeConfig(t, "unused.csv"), "--source", "alphavantage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.env")
	assert.NoError(t, loadEnv(missing, false), "missing default file is ignored")
	assert.Error(t, loadEnv(missing, true), "missing explicit file is an error")
	assert.NoError(t, loadEnv("", true))

	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CONDOR_CMD_TEST_VALUE=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CONDOR_CMD_TEST_VALUE") })

	require.NoError(t, loadEnv(path, true))
	assert.Equal(t, "from-file", os.Getenv("CONDOR_CMD_TEST_VALUE"))
}

func TestGroupBySymbol(t *testing.T) {
	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	snaps := []models.MarketSnapshot{
		{Symbol: "QQQ", Timestamp: at},
		{Symbol: "", Timestamp: at},
		{Symbol: "QQQ", Timestamp: at.Add(time.Hour)},
		{Symbol: "SPY", Timestamp: at.Add(2 * time.Hour)},
	}

	groups, order := groupBySymbol(snaps, "SPY")
	assert.Equal(t, []string{"QQQ", "SPY"}, order)
	require.Len(t, groups["QQQ"], 2)
	assert.Equal(t, at.Add(time.Hour), groups["QQQ"][1].Timestamp)
	require.Len(t, groups["SPY"], 2)
	assert.Equal(t, at, groups["SPY"][0].Timestamp)
}
