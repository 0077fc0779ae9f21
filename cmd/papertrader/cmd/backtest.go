package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rustyeddy/papertrader/backtest"
	"github.com/spf13/cobra"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest a strategy against historical candles",
	Long: `Backtest replays hourly candles for a coin through a strategy and
reports trades, metrics and the recent price/indicator chart.

Supported strategies:
  - sma_crossover: short_period, long_period (defaults 10, 30)
  - rsi:           rsi_period, oversold, overbought (defaults 14, 30, 70)

Example:
  papertrader backtest -c bitcoin -s sma_crossover -p short_period=5 -p long_period=20 --days 60`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

var (
	btCoin       string
	btStrategy   string
	btParams     []string
	btDays       int
	btJSON       bool
	btParquetDir string
	btNoJournal  bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btCoin, "coin", "c", "bitcoin", "coin id (bitcoin, ethereum, ...) or exchange symbol")
	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "sma_crossover", "strategy name (sma_crossover, rsi)")
	backtestCmd.Flags().StringArrayVarP(&btParams, "param", "p", nil, "strategy parameter as key=value (repeatable)")
	backtestCmd.Flags().IntVar(&btDays, "days", 0, "days of hourly history (default from config)")
	backtestCmd.Flags().BoolVar(&btJSON, "json", false, "print the full result as JSON")
	backtestCmd.Flags().StringVar(&btParquetDir, "parquet-dir", "", "write trades and chart parquet files to this directory")
	backtestCmd.Flags().BoolVar(&btNoJournal, "no-journal", false, "do not record the run in the journal")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	params, err := parseParams(btParams)
	if err != nil {
		return err
	}

	src, cleanup, err := openMarket(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	days := btDays
	if days == 0 {
		days = cfg.Backtest.Days
	}

	res, err := newRunner(src).Run(ctx, backtest.Request{
		Coin:     btCoin,
		Strategy: btStrategy,
		Params:   params,
		Days:     days,
	})
	if err != nil {
		return err
	}

	if btJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		backtest.WriteReport(os.Stdout, res)
	}

	if !res.Success {
		return fmt.Errorf("backtest failed: %s", res.Error)
	}

	if !btNoJournal {
		j, err := openJournal()
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		if j != nil {
			defer j.Close()
			if err := recordRun(ctx, j, res); err != nil {
				return fmt.Errorf("journal: %w", err)
			}
		}
	}

	dir := btParquetDir
	if dir == "" {
		dir = cfg.Backtest.ParquetDir
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		tradesPath := filepath.Join(dir, res.RunID+"-trades.parquet")
		chartPath := filepath.Join(dir, res.RunID+"-chart.parquet")
		if err := backtest.ExportParquet(res, tradesPath, chartPath); err != nil {
			return err
		}
		logger.WithField("dir", dir).Info("parquet export written")
	}
	return nil
}

// parseParams turns key=value flags into a params map.
func parseParams(kvs []string) (map[string]float64, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("param %q: want key=value", kv)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", kv, err)
		}
		out[strings.TrimSpace(k)] = x
	}
	return out, nil
}
