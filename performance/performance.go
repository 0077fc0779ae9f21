// Package performance derives performance metrics from backtest trades and
// from the paper ledger's trade history.
package performance

import (
	"math"

	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/strategies"
)

// DefaultInitialCapital seeds backtest capital and the drawdown simulation.
const DefaultInitialCapital = 10000.0

// Metrics summarises a backtest trade list. Only SELL trades count.
type Metrics struct {
	TotalTrades      int     `json:"total_trades"`
	ProfitableTrades int     `json:"profitable_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
	TotalProfit      float64 `json:"total_profit"`
	TotalProfitPct   float64 `json:"total_profit_pct"`
	AvgProfit        float64 `json:"avg_profit"`
	MaxProfit        float64 `json:"max_profit"`
	MaxLoss          float64 `json:"max_loss"`
	FinalCapital     float64 `json:"final_capital"`
}

// BacktestMetrics aggregates the SELL trades in trades. A trade with
// profit <= 0 counts as losing. All fields default to 0 on empty input.
func BacktestMetrics(trades []strategies.Trade, initialCapital float64) Metrics {
	m := Metrics{FinalCapital: initialCapital}

	first := true
	for _, t := range trades {
		if t.Action != strategies.Sell {
			continue
		}
		p := t.ProfitOr(0)
		pct := 0.0
		if t.ProfitPct != nil {
			pct = *t.ProfitPct
		}

		m.TotalTrades++
		if p > 0 {
			m.ProfitableTrades++
		} else {
			m.LosingTrades++
		}
		m.TotalProfit += p
		m.TotalProfitPct += pct

		if first || p > m.MaxProfit {
			m.MaxProfit = p
		}
		if first || p < m.MaxLoss {
			m.MaxLoss = p
		}
		first = false
	}

	if m.TotalTrades > 0 {
		n := float64(m.TotalTrades)
		m.WinRate = float64(m.ProfitableTrades) / n * 100
		m.AvgProfit = m.TotalProfit / n
	}
	m.FinalCapital = initialCapital + m.TotalProfit
	return m
}

// Portfolio metrics for the live ledger history.
type Portfolio struct {
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
}

// Analyze computes the portfolio metrics over a ledger history.
func Analyze(history []ledger.Record) Portfolio {
	if len(history) == 0 {
		return Portfolio{}
	}
	return Portfolio{
		SharpeRatio: SharpeRatio(history),
		MaxDrawdown: MaxDrawdown(history, DefaultInitialCapital),
		WinRate:     WinRate(history),
	}
}

// SharpeRatio is mean/stdev of the percent returns of SELL records
// against their buy price (the sell price when no buy price is recorded,
// i.e. a zero return). It is 0 with fewer than two qualifying sells or a
// zero standard deviation.
func SharpeRatio(history []ledger.Record) float64 {
	var returns []float64
	for _, r := range history {
		if r.Side != ledger.Sell {
			continue
		}
		price := r.Price.InexactFloat64()
		ref := price
		if r.BuyPrice != nil {
			ref = r.BuyPrice.InexactFloat64()
		}
		if ret, ok := market.Defined((price - ref) / ref * 100).Float64(); ok {
			returns = append(returns, ret)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	mean, sd := meanStdev(returns)
	if sd == 0 {
		return 0
	}
	return Round2(market.Defined(mean / sd).Or(0))
}

// meanStdev returns the mean and the sample standard deviation. The
// deviation is 1 for fewer than two values.
func meanStdev(xs []float64) (mean, sd float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 1
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

// MaxDrawdown replays history as cash flows from initial: BUY totals are
// subtracted and SELL totals added. It returns the largest
// (peak-balance)/peak percentage seen.
func MaxDrawdown(history []ledger.Record, initial float64) float64 {
	balance := initial
	peak := balance
	maxDD := 0.0

	for _, r := range history {
		total := r.Total.InexactFloat64()
		if r.Side == ledger.Buy {
			balance -= total
		} else {
			balance += total
		}
		if balance > peak {
			peak = balance
		}
		if peak > 0 {
			if dd := (peak - balance) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return Round2(maxDD)
}

// WinRate is the share of SELL records with a positive profit, in percent.
func WinRate(history []ledger.Record) float64 {
	sells, wins := 0, 0
	for _, r := range history {
		if r.Side != ledger.Sell {
			continue
		}
		sells++
		if r.Profit != nil && r.Profit.IsPositive() {
			wins++
		}
	}
	if sells == 0 {
		return 0
	}
	return Round2(float64(wins) / float64(sells) * 100)
}

// Round2 rounds x to two decimals.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
