// Package backtest runs a strategy over historical candles and bundles
// trades, metrics, chart data and indicator series into a Result.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/performance"
	"github.com/rustyeddy/papertrader/pkg/id"
	"github.com/rustyeddy/papertrader/strategies"
	"github.com/sirupsen/logrus"
)

const (
	DefaultDays     = 30
	DefaultInterval = "1h"

	// ChartPoints caps the chart series to the most recent candles.
	ChartPoints = 100
)

// HistoryProvider resolves coins and serves historical candles, oldest
// first. binance.Client and market.CSVHistory implement it.
type HistoryProvider interface {
	ResolveSymbol(coin string) (string, error)
	History(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

// Request describes one backtest.
type Request struct {
	Coin     string             `json:"coin"`
	Strategy string             `json:"strategy"`
	Params   map[string]float64 `json:"params"`
	Days     int                `json:"days"`
}

// RunnerOptions controls how the runner fetches and sizes data.
type RunnerOptions struct {
	// Interval of the fetched candles (default DefaultInterval). Days are
	// converted to candles assuming hourly data.
	Interval       string
	InitialCapital float64
	ChartPoints    int
}

// Runner executes backtests against a HistoryProvider. It holds no run
// state and is safe for concurrent use.
type Runner struct {
	History HistoryProvider
	Options RunnerOptions
	Log     logrus.FieldLogger
}

func (r *Runner) options() RunnerOptions {
	o := r.Options
	if o.Interval == "" {
		o.Interval = DefaultInterval
	}
	if o.InitialCapital <= 0 {
		o.InitialCapital = performance.DefaultInitialCapital
	}
	if o.ChartPoints <= 0 {
		o.ChartPoints = ChartPoints
	}
	return o
}

func (r *Runner) logger() logrus.FieldLogger {
	if r.Log == nil {
		return logrus.StandardLogger()
	}
	return r.Log
}

// Run executes req. Malformed input (params, days, coin) is returned as a
// *market.ValidationError. An unknown strategy or missing or too-short
// history yields a Result with Success false, Failure set and no trades.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if r.History == nil {
		return Result{}, errors.New("backtest: History is required")
	}
	opts := r.options()

	days := req.Days
	if days == 0 {
		days = DefaultDays
	}
	if days < 0 {
		return Result{}, market.Invalid("days", "must be positive, got %d", req.Days)
	}

	log := r.logger().WithFields(logrus.Fields{"coin": req.Coin, "strategy": req.Strategy})

	kind, err := strategies.ParseKind(req.Strategy)
	if err != nil {
		log.WithError(err).Warn("backtest rejected")
		return failed(req, err), nil
	}

	params, err := strategies.ParamsFromMap(kind, req.Params)
	if err != nil {
		return Result{}, err
	}
	strat, err := strategies.New(params)
	if err != nil {
		return Result{}, err
	}

	symbol, err := r.History.ResolveSymbol(req.Coin)
	if err != nil {
		if market.IsValidation(err) {
			return Result{}, err
		}
		return failed(req, unavailable(err)), nil
	}

	candles, err := r.History.History(ctx, symbol, opts.Interval, days*24)
	if err != nil {
		log.WithError(err).Warn("history fetch failed")
		res := failed(req, unavailable(err))
		res.Symbol = symbol
		return res, nil
	}

	run, err := strategies.Evaluate(strat, candles)
	if err != nil {
		log.WithError(err).Warn("backtest aborted")
		res := failed(req, unavailable(err))
		res.Symbol = symbol
		return res, nil
	}

	res := Result{
		Success:      true,
		RunID:        id.New(),
		Coin:         req.Coin,
		Symbol:       symbol,
		Strategy:     kind,
		Params:       params.Map(),
		Interval:     opts.Interval,
		Trades:       run.Trades,
		Metrics:      performance.BacktestMetrics(run.Trades, opts.InitialCapital),
		ChartData:    buildChart(candles, run.Indicators, opts.ChartPoints),
		Indicators:   run.Indicators,
		OpenPosition: run.Open,
		Start:        candles[0].Time,
		End:          candles[len(candles)-1].Time,
	}
	if res.Trades == nil {
		res.Trades = []strategies.Trade{}
	}

	log.WithFields(logrus.Fields{
		"run_id":  res.RunID,
		"candles": len(candles),
		"trades":  res.Metrics.TotalTrades,
		"profit":  res.Metrics.TotalProfit,
	}).Info("backtest complete")
	return res, nil
}

func unavailable(err error) error {
	if errors.Is(err, market.ErrDataUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", market.ErrDataUnavailable, err)
}

func failed(req Request, err error) Result {
	return Result{
		Success:   false,
		Error:     err.Error(),
		Failure:   err,
		Coin:      req.Coin,
		Strategy:  strategies.Kind(req.Strategy),
		Params:    req.Params,
		Trades:    []strategies.Trade{},
		ChartData: []ChartPoint{},
	}
}

// Result is the serialisable outcome of a backtest.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Failure error  `json:"-"`

	RunID    string             `json:"run_id,omitempty"`
	Coin     string             `json:"coin"`
	Symbol   string             `json:"symbol,omitempty"`
	Strategy strategies.Kind    `json:"strategy"`
	Params   map[string]float64 `json:"params"`
	Interval string             `json:"interval,omitempty"`

	Trades       []strategies.Trade       `json:"trades"`
	Metrics      performance.Metrics      `json:"metrics"`
	ChartData    []ChartPoint             `json:"chart_data"`
	Indicators   map[string]market.Series `json:"indicators,omitempty"`
	OpenPosition *strategies.Position     `json:"open_position,omitempty"`

	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`
}

// ChartPoint is one candle of the chart series with the indicator values
// of the strategy that produced it. Indicators the strategy does not use
// are omitted; undefined values encode as null.
type ChartPoint struct {
	Timestamp time.Time     `json:"timestamp"`
	Price     float64       `json:"price"`
	Volume    float64       `json:"volume"`
	ShortSMA  *market.Value `json:"short_sma,omitempty"`
	LongSMA   *market.Value `json:"long_sma,omitempty"`
	RSI       *market.Value `json:"rsi,omitempty"`
}

func buildChart(candles []market.Candle, ind map[string]market.Series, n int) []ChartPoint {
	start := max(0, len(candles)-n)
	out := make([]ChartPoint, 0, len(candles)-start)

	at := func(key string, i int) *market.Value {
		s, ok := ind[key]
		if !ok {
			return nil
		}
		v := s.At(i)
		return &v
	}

	for i := start; i < len(candles); i++ {
		c := candles[i]
		out = append(out, ChartPoint{
			Timestamp: c.Time,
			Price:     c.Close,
			Volume:    c.Volume,
			ShortSMA:  at("short_sma", i),
			LongSMA:   at("long_sma", i),
			RSI:       at("rsi", i),
		})
	}
	return out
}
