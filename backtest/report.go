package backtest

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// WriteReport prints a human readable summary of res.
func WriteReport(w io.Writer, res Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	if !res.Success {
		fmt.Fprintf(w, "Coin:          %s\n", res.Coin)
		fmt.Fprintf(w, "Strategy:      %s\n", res.Strategy)
		fmt.Fprintf(w, "FAILED:        %s\n", res.Error)
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintf(w, "Run ID:        %s\n", res.RunID)
	fmt.Fprintf(w, "Strategy:      %s\n", res.Strategy)
	fmt.Fprintf(w, "Coin:          %s (%s)\n", res.Coin, res.Symbol)
	fmt.Fprintf(w, "Interval:      %s\n", res.Interval)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", res.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", res.End.Format(time.RFC3339))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Strategy Configuration")
	fmt.Fprintln(w, "--------------------------------------------------")
	keys := make([]string, 0, len(res.Params))
	for k := range res.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-14s %g\n", k+":", res.Params[k])
	}

	m := res.Metrics
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", m.TotalTrades)
	fmt.Fprintf(w, "Wins:          %d\n", m.ProfitableTrades)
	fmt.Fprintf(w, "Losses:        %d\n", m.LosingTrades)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", m.WinRate)
	fmt.Fprintf(w, "Avg Profit:    %.2f\n", m.AvgProfit)
	fmt.Fprintf(w, "Max Profit:    %.2f\n", m.MaxProfit)
	fmt.Fprintf(w, "Max Loss:      %.2f\n", m.MaxLoss)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", m.FinalCapital-m.TotalProfit)
	fmt.Fprintf(w, "End Balance:   %.2f\n", m.FinalCapital)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", m.TotalProfit)
	fmt.Fprintf(w, "Return:        %.2f%%\n", m.TotalProfitPct)

	if res.OpenPosition != nil {
		fmt.Fprintf(w, "Open Position: entered %.2f at %s\n",
			res.OpenPosition.EntryPrice, res.OpenPosition.EntryTime.Format(time.RFC3339))
	}

	if len(res.Trades) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Trades")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, t := range res.Trades {
			line := fmt.Sprintf("%s %-4s %12.4f  %s", t.Time.Format("2006-01-02 15:04"), t.Action, t.Price, t.Reason)
			if t.Profit != nil {
				line += fmt.Sprintf("  P/L %.2f (%.2f%%)", *t.Profit, *t.ProfitPct)
			}
			fmt.Fprintln(w, strings.TrimRight(line, " "))
		}
	}

	fmt.Fprintln(w)
}
