package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rustyeddy/papertrader/ledger"
	"github.com/spf13/cobra"
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Execute paper trades against the virtual account",
	Long: `Buy or sell a coin with the paper account's USD balance.

When the price is omitted the current market price is used.

Examples:
  papertrader trade buy bitcoin 0.1 64000
  papertrader trade sell bitcoin 0.05`,
}

func newTradeSideCmd(side string) *cobra.Command {
	return &cobra.Command{
		Use:   side + " <coin> <amount> [price]",
		Short: fmt.Sprintf("Paper %s a coin", side),
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrade(cmd, side, args)
		},
	}
}

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.AddCommand(newTradeSideCmd("buy"))
	tradeCmd.AddCommand(newTradeSideCmd("sell"))
}

func runTrade(cmd *cobra.Command, side string, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	coin := args[0]
	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}

	var price float64
	if len(args) == 3 {
		if price, err = strconv.ParseFloat(args[2], 64); err != nil {
			return fmt.Errorf("price: %w", err)
		}
	} else {
		src, cleanup, err := openMarket(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		if price, err = src.Price(ctx, coin); err != nil {
			return fmt.Errorf("quote %s: %w", coin, err)
		}
	}

	l, repo, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	res, err := l.ExecuteTrade(ctx, ledger.TradeRequest{Coin: coin, Side: side, Amount: amount, Price: price})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}

	fmt.Println(res.Message)
	if res.Trade != nil && res.Trade.Profit != nil {
		fmt.Printf("  Profit: $%s (avg cost $%s)\n", res.Trade.Profit.StringFixed(2), res.Trade.BuyPrice.StringFixed(2))
	}
	return nil
}
