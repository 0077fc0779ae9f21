// Package journal records backtest runs, their closed trades and equity
// curve to SQLite or CSV, and renders them as Org-mode notes.
package journal

import "time"

// TradeRecord is one closed round trip of a backtest run.
type TradeRecord struct {
	TradeID    string
	RunID      string
	Instrument string
	Units      float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Reason     string
}

// EquitySnapshot is the simulated balance after a closed trade.
type EquitySnapshot struct {
	RunID   string
	Time    time.Time
	Balance float64
	Equity  float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}
