package cmd

import (
	"fmt"

	"github.com/rustyeddy/papertrader/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "Strategy backtesting and paper trading for crypto markets",
	Long: `Papertrader backtests simple technical strategies against historical
exchange candles and keeps a persistent virtual account for paper trades.

It provides tools for:
  - Backtesting SMA crossover and RSI threshold strategies
  - Parameter sweeps across coins and strategies
  - Paper buying and selling against a USD balance
  - Portfolio valuation, Sharpe ratio, drawdown and win rate
  - A journal of backtest runs with Org-mode export
  - An HTTP JSON API over all of the above`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *logrus.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "f", "", "config file (YAML or JSON); defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override (text, json)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err = newLogger(cfg.Log)
	return err
}
