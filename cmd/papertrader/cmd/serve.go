package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP JSON API",
	Long: `Serve exposes backtests, paper trades and the portfolio over HTTP:

  POST /api/backtest/run       run one backtest
  POST /api/backtest/sweep     run several backtests in parallel
  GET  /api/backtest/runs      list journaled runs
  POST /api/trades/execute     execute a paper trade
  GET  /api/portfolio          portfolio summary
  POST /api/portfolio/reset    reset the paper account
  GET  /api/prices/current/:coin`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
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

	deps := server.Deps{
		Runner:    newRunner(src),
		Ledger:    l,
		Portfolio: &portfolio.Service{Ledger: l, Quotes: src, Log: logger},
		Dataset:   cfg.Journal.Dataset,
		Quotes:    src,
		Log:       logger,
	}

	if cfg.Journal.Type == "sqlite" {
		if err := ensureDir(cfg.Journal.DBPath); err != nil {
			return err
		}
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return err
		}
		defer j.Close()
		deps.Journal = j
	}

	if cfg.Market.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Market.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unavailable, response cache disabled")
			rdb.Close()
		} else {
			defer rdb.Close()
			deps.Cache = rdb
			deps.CacheTTL, _ = cfg.Market.CacheDuration()
		}
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	readTimeout, writeTimeout, err := cfg.Server.Timeouts()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      server.NewHandler(deps),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
