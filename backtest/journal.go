package backtest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/performance"
	"github.com/rustyeddy/papertrader/strategies"
)

// JournalEntries converts a successful result to journal rows: one
// TradeRecord per closed BUY/SELL round trip and an equity snapshot after
// each of them. One unit is traded per round trip.
func (res Result) JournalEntries(dataset string) (journal.BacktestRun, []journal.TradeRecord, []journal.EquitySnapshot, error) {
	if !res.Success {
		return journal.BacktestRun{}, nil, nil, fmt.Errorf("journal: backtest failed: %s", res.Error)
	}

	cfg, err := json.Marshal(res.Params)
	if err != nil {
		return journal.BacktestRun{}, nil, nil, err
	}

	m := res.Metrics
	start := m.FinalCapital - m.TotalProfit
	balance := start

	var (
		trades []journal.TradeRecord
		equity []journal.EquitySnapshot
		entry  *strategies.Trade
	)
	for i := range res.Trades {
		t := res.Trades[i]
		switch t.Action {
		case strategies.Buy:
			entry = &t
		case strategies.Sell:
			if entry == nil {
				continue
			}
			pl := t.ProfitOr(0)
			balance += pl
			trades = append(trades, journal.TradeRecord{
				TradeID:    fmt.Sprintf("%s-%d", res.RunID, len(trades)+1),
				RunID:      res.RunID,
				Instrument: res.Symbol,
				Units:      1,
				EntryPrice: entry.Price,
				ExitPrice:  t.Price,
				OpenTime:   entry.Time,
				CloseTime:  t.Time,
				RealizedPL: pl,
				Reason:     t.Reason,
			})
			equity = append(equity, journal.EquitySnapshot{
				RunID:   res.RunID,
				Time:    t.Time,
				Balance: balance,
				Equity:  balance,
			})
			entry = nil
		}
	}

	stats := journal.Summarize(trades)
	run := journal.BacktestRun{
		RunID:        res.RunID,
		Created:      time.Now().UTC(),
		Timeframe:    res.Interval,
		Dataset:      dataset,
		Instrument:   res.Symbol,
		Coin:         res.Coin,
		Strategy:     string(res.Strategy),
		Config:       cfg,
		Start:        res.Start,
		End:          res.End,
		Trades:       m.TotalTrades,
		Wins:         m.ProfitableTrades,
		Losses:       m.LosingTrades,
		StartBalance: start,
		EndBalance:   m.FinalCapital,
		NetPL:        m.TotalProfit,
		ReturnPct:    m.TotalProfitPct,
		WinRate:      m.WinRate,
		ProfitFactor: stats.ProfitFactor,
		MaxDDPct:     equityDrawdown(start, equity),
	}
	return run, trades, equity, nil
}

func equityDrawdown(start float64, eq []journal.EquitySnapshot) float64 {
	peak := start
	dd := 0.0
	for _, e := range eq {
		if e.Balance > peak {
			peak = e.Balance
		}
		if peak > 0 {
			dd = max(dd, (peak-e.Balance)/peak*100)
		}
	}
	return performance.Round2(dd)
}
