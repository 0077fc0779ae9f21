// Package server exposes backtests, paper trades and the portfolio view
// as a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rustyeddy/papertrader/backtest"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/sirupsen/logrus"
)

const (
	backtestBasePath  = "/api/backtest"
	tradesBasePath    = "/api/trades"
	portfolioBasePath = "/api/portfolio"
	pricesBasePath    = "/api/prices"

	defaultRunsLimit = 20
)

var errNoJournal = errors.New("journal not configured")

// RunJournal records and lists backtest runs. *journal.SQLite implements it.
type RunJournal interface {
	RecordBacktest(ctx context.Context, run journal.BacktestRun, trades []journal.TradeRecord, equity []journal.EquitySnapshot) error
	ListBacktestRuns(ctx context.Context, limit int) ([]journal.BacktestRun, error)
}

// Deps are the services behind the API. Journal, Quotes and Cache are
// optional.
type Deps struct {
	Runner    *backtest.Runner
	Ledger    *ledger.Ledger
	Portfolio *portfolio.Service
	Journal   RunJournal
	Dataset   string
	Quotes    portfolio.PriceQuoter
	Cache     *redis.Client
	CacheTTL  time.Duration
	Log       logrus.FieldLogger
}

type Handler struct {
	router *gin.Engine
	deps   Deps
	log    logrus.FieldLogger
}

func NewHandler(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(d.Log))

	h := &Handler{router: router, deps: d, log: d.Log}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	bt := h.router.Group(backtestBasePath)
	{
		bt.POST("/run", h.runBacktest)
		bt.POST("/sweep", h.runSweep)
		bt.GET("/runs", h.listRuns)
	}

	tr := h.router.Group(tradesBasePath)
	{
		tr.POST("/execute", h.executeTrade)
	}

	pf := h.router.Group(portfolioBasePath)
	{
		pf.GET("", h.getPortfolio)
		pf.POST("/reset", h.resetPortfolio)
	}

	pr := h.router.Group(pricesBasePath)
	if h.deps.Cache != nil {
		pr.Use(cacheMiddleware(h.deps.Cache, h.deps.CacheTTL))
	}
	{
		pr.GET("/current/:coin", h.currentPrice)
	}
}

// runBacktest godoc
// POST /api/backtest/run {coin, strategy, params, days}
func (h *Handler) runBacktest(c *gin.Context) {
	var req backtest.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	res, err := h.deps.Runner.Run(c.Request.Context(), req)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	h.journal(c.Request.Context(), res)

	c.JSON(http.StatusOK, gin.H{"success": res.Success, "data": res})
}

type sweepPayload struct {
	Requests    []backtest.Request `json:"requests"`
	Parallelism int                `json:"parallelism"`
}

func (h *Handler) runSweep(c *gin.Context) {
	var payload sweepPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if len(payload.Requests) == 0 {
		writeError(c, http.StatusBadRequest, market.Invalid("requests", "must not be empty"))
		return
	}

	results, err := h.deps.Runner.RunAll(c.Request.Context(), payload.Requests, payload.Parallelism)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	for _, res := range results {
		h.journal(c.Request.Context(), res)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": results})
}

func (h *Handler) journal(ctx context.Context, res backtest.Result) {
	if h.deps.Journal == nil || !res.Success {
		return
	}
	run, trades, equity, err := res.JournalEntries(h.deps.Dataset)
	if err == nil {
		err = h.deps.Journal.RecordBacktest(ctx, run, trades, equity)
	}
	if err != nil {
		h.log.WithError(err).WithField("run_id", res.RunID).Warn("journal write failed")
	}
}

func (h *Handler) listRuns(c *gin.Context) {
	if h.deps.Journal == nil {
		writeError(c, http.StatusNotFound, errNoJournal)
		return
	}
	limit := defaultRunsLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, market.Invalid("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := h.deps.Journal.ListBacktestRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []journal.BacktestRun{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": runs})
}

// executeTrade godoc
// POST /api/trades/execute {coin, side, amount, price}
func (h *Handler) executeTrade(c *gin.Context) {
	var req ledger.TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	res, err := h.deps.Ledger.ExecuteTrade(c.Request.Context(), req)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) getPortfolio(c *gin.Context) {
	sum, err := h.deps.Portfolio.Summary(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": sum})
}

func (h *Handler) resetPortfolio(c *gin.Context) {
	acct, err := h.deps.Ledger.Reset(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": acct})
}

func (h *Handler) currentPrice(c *gin.Context) {
	if h.deps.Quotes == nil {
		writeError(c, http.StatusNotFound, errors.New("price source not configured"))
		return
	}
	coin := c.Param("coin")
	price, err := h.deps.Quotes.Price(c.Request.Context(), coin)
	if err != nil {
		writeError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"coin": coin, "usd": price}})
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case market.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrDataUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
