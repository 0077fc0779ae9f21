package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/spf13/cobra"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Show the paper account valued at current prices",
	Args:  cobra.NoArgs,
	RunE:  runPortfolio,
}

var portfolioResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the paper account to its initial balance",
	Long: `Reset clears holdings and history and restores the configured
initial USD balance.`,
	Args: cobra.NoArgs,
	RunE: runPortfolioReset,
}

var pfJSON bool

func init() {
	rootCmd.AddCommand(portfolioCmd)
	portfolioCmd.AddCommand(portfolioResetCmd)

	portfolioCmd.Flags().BoolVar(&pfJSON, "json", false, "print the summary as JSON")
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	l, repo, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	src, cleanup, err := openMarket(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := &portfolio.Service{Ledger: l, Quotes: src, Log: logger}
	sum, err := svc.Summary(ctx)
	if err != nil {
		return err
	}

	if pfJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Printf("USD Balance:   $%.2f\n", sum.Balance)
	fmt.Printf("Total Value:   $%.2f\n\n", sum.TotalValue)

	coins := make([]string, 0, len(sum.Holdings))
	for c := range sum.Holdings {
		coins = append(coins, c)
	}
	sort.Strings(coins)

	if len(coins) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "COIN\tAMOUNT\tPRICE\tVALUE")
		for _, c := range coins {
			h := sum.Holdings[c]
			fmt.Fprintf(w, "%s\t%g\t%.4f\t%.2f\n", c, h.Amount, h.CurrentPrice, h.CurrentValue)
		}
		w.Flush()
		fmt.Println()
	}

	fmt.Printf("Sharpe Ratio:  %.2f\n", sum.Metrics.SharpeRatio)
	fmt.Printf("Max Drawdown:  %.2f%%\n", sum.Metrics.MaxDrawdown)
	fmt.Printf("Win Rate:      %.2f%%\n", sum.Metrics.WinRate)
	fmt.Printf("Trades:        %d\n\n", len(sum.History))
	fmt.Println(sum.Suggestions)
	return nil
}

func runPortfolioReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	l, repo, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	acct, err := l.Reset(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Account %s reset to $%s\n", acct.ID, acct.USDBalance.StringFixed(2))
	return nil
}
