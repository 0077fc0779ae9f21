package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/rustyeddy/papertrader/backtest"
	"github.com/rustyeddy/papertrader/binance"
	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func newLogger(c config.LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(level)
	if c.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}

func openRepository(ctx context.Context, c config.LedgerConfig) (ledger.Repository, error) {
	switch c.Backend {
	case "sqlite":
		if err := ensureDir(c.Path); err != nil {
			return nil, err
		}
		return ledger.NewSQLiteRepository(c.Path)
	case "postgres":
		return ledger.NewPostgresRepository(ctx, c.DSN)
	default:
		return ledger.NewFileRepository(c.Path)
	}
}

// openLedger returns the configured ledger and the repository to close.
func openLedger(ctx context.Context) (*ledger.Ledger, ledger.Repository, error) {
	repo, err := openRepository(ctx, cfg.Ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	l := ledger.New(repo,
		ledger.WithAccountID(cfg.Account.ID),
		ledger.WithInitialBalance(decimal.NewFromFloat(cfg.Account.Balance)),
		ledger.WithLogger(logger),
	)
	return l, repo, nil
}

// marketSource serves both candles and current prices.
type marketSource interface {
	backtest.HistoryProvider
	portfolio.PriceQuoter
}

func openMarket(ctx context.Context) (marketSource, func(), error) {
	if cfg.Market.Source == "csv" {
		return market.NewCSVHistory(cfg.Market.CSVDir), func() {}, nil
	}

	opts := []binance.Option{binance.WithLogger(logger)}
	if cfg.Market.BaseURL != "" {
		opts = append(opts, binance.WithBaseURL(cfg.Market.BaseURL))
	}

	cleanup := func() {}
	if cfg.Market.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Market.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		ttl, _ := cfg.Market.CacheDuration()
		opts = append(opts, binance.WithCache(rdb, ttl))
		cleanup = func() { rdb.Close() }
	}
	return binance.NewClient(opts...), cleanup, nil
}

func newRunner(src backtest.HistoryProvider) *backtest.Runner {
	return &backtest.Runner{
		History: src,
		Options: backtest.RunnerOptions{
			Interval:       cfg.Backtest.Interval,
			InitialCapital: cfg.Backtest.InitialCapital,
		},
		Log: logger,
	}
}

// runJournal is the part of a journal backtests are recorded to.
type runJournal interface {
	RecordBacktest(ctx context.Context, run journal.BacktestRun, trades []journal.TradeRecord, equity []journal.EquitySnapshot) error
	Close() error
}

// openJournal returns nil when journaling is disabled.
func openJournal() (runJournal, error) {
	switch cfg.Journal.Type {
	case "sqlite":
		if err := ensureDir(cfg.Journal.DBPath); err != nil {
			return nil, err
		}
		return journal.NewSQLite(cfg.Journal.DBPath)
	case "csv":
		return journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	default:
		return nil, nil
	}
}

func recordRun(ctx context.Context, j runJournal, res backtest.Result) error {
	if j == nil || !res.Success {
		return nil
	}
	run, trades, equity, err := res.JournalEntries(cfg.Journal.Dataset)
	if err != nil {
		return err
	}
	if cfg.Journal.OrgDir != "" {
		if err := os.MkdirAll(cfg.Journal.OrgDir, 0o755); err != nil {
			return err
		}
		run.OrgPath = filepath.Join(cfg.Journal.OrgDir, run.RunID+".org")
		if err := run.WriteBacktestOrg(); err != nil {
			return fmt.Errorf("write org: %w", err)
		}
	}
	return j.RecordBacktest(ctx, run, trades, equity)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
