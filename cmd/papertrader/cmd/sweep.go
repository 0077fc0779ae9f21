package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rustyeddy/papertrader/backtest"
	"github.com/rustyeddy/papertrader/strategies"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Backtest a grid of coins, strategies and parameters in parallel",
	Long: `Sweep runs one backtest per combination of coin and strategy
parameters and prints a ranked table.

SMA combinations pair every --short with every larger --long; RSI runs
once per --rsi-period with the default thresholds.

Example:
  papertrader sweep --coins bitcoin,ethereum --short 5,10 --long 20,30 --rsi-period 7,14`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var (
	swCoins       []string
	swStrategies  []string
	swShort       []int
	swLong        []int
	swRSIPeriods  []int
	swDays        int
	swParallelism int
)

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringSliceVar(&swCoins, "coins", []string{"bitcoin", "ethereum"}, "coins to test")
	sweepCmd.Flags().StringSliceVar(&swStrategies, "strategies", []string{"sma_crossover", "rsi"}, "strategies to test")
	sweepCmd.Flags().IntSliceVar(&swShort, "short", []int{5, 10}, "sma_crossover short periods")
	sweepCmd.Flags().IntSliceVar(&swLong, "long", []int{20, 30}, "sma_crossover long periods")
	sweepCmd.Flags().IntSliceVar(&swRSIPeriods, "rsi-period", []int{14}, "rsi periods")
	sweepCmd.Flags().IntVar(&swDays, "days", 0, "days of hourly history (default from config)")
	sweepCmd.Flags().IntVar(&swParallelism, "parallelism", 0, "concurrent backtests (default from config)")
}

func sweepRequests() ([]backtest.Request, error) {
	days := swDays
	if days == 0 {
		days = cfg.Backtest.Days
	}

	var reqs []backtest.Request
	for _, coin := range swCoins {
		for _, s := range swStrategies {
			kind, err := strategies.ParseKind(s)
			if err != nil {
				return nil, err
			}
			switch kind {
			case strategies.SMACrossover:
				for _, short := range swShort {
					for _, long := range swLong {
						if short >= long {
							continue
						}
						reqs = append(reqs, backtest.Request{
							Coin: coin, Strategy: string(kind), Days: days,
							Params: map[string]float64{"short_period": float64(short), "long_period": float64(long)},
						})
					}
				}
			case strategies.RSIThreshold:
				for _, p := range swRSIPeriods {
					reqs = append(reqs, backtest.Request{
						Coin: coin, Strategy: string(kind), Days: days,
						Params: map[string]float64{"rsi_period": float64(p)},
					})
				}
			}
		}
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("sweep: no parameter combinations")
	}
	return reqs, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reqs, err := sweepRequests()
	if err != nil {
		return err
	}

	src, cleanup, err := openMarket(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	parallelism := swParallelism
	if parallelism == 0 {
		parallelism = cfg.Backtest.Parallelism
	}

	results, err := newRunner(src).RunAll(ctx, reqs, parallelism)
	if err != nil {
		return err
	}

	j, err := openJournal()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if j != nil {
		defer j.Close()
		for _, res := range results {
			if err := recordRun(ctx, j, res); err != nil {
				logger.WithError(err).WithField("run_id", res.RunID).Warn("journal write failed")
			}
		}
	}

	printSweep(results)
	return nil
}

func printSweep(results []backtest.Result) {
	sorted := append([]backtest.Result(nil), results...)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].Success != sorted[b].Success {
			return sorted[a].Success
		}
		return sorted[a].Metrics.TotalProfitPct > sorted[b].Metrics.TotalProfitPct
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COIN\tSTRATEGY\tPARAMS\tTRADES\tWIN%\tPROFIT\tPROFIT%\tSTATUS")
	for _, r := range sorted {
		status := "ok"
		if !r.Success {
			status = r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%s\n",
			r.Coin, r.Strategy, formatParams(r.Params), r.Metrics.TotalTrades,
			r.Metrics.WinRate, r.Metrics.TotalProfit, r.Metrics.TotalProfitPct, status)
	}
	w.Flush()
}

func formatParams(p map[string]float64) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, p[k]))
	}
	return strings.Join(parts, ",")
}
