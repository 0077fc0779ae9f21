package backtest

import (
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// TradeRow is one trade in the parquet export.
type TradeRow struct {
	RunID     string   `parquet:"run_id"`
	Symbol    string   `parquet:"symbol"`
	Strategy  string   `parquet:"strategy"`
	Index     int64    `parquet:"index"`
	Timestamp int64    `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Action    string   `parquet:"action"`
	Price     float64  `parquet:"price"`
	Reason    string   `parquet:"reason"`
	RSI       *float64 `parquet:"rsi"`
	Profit    *float64 `parquet:"profit"`
	ProfitPct *float64 `parquet:"profit_pct"`
}

// ChartRow is one chart point in the parquet export. Undefined indicator
// values are null.
type ChartRow struct {
	RunID     string   `parquet:"run_id"`
	Timestamp int64    `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Price     float64  `parquet:"price"`
	Volume    float64  `parquet:"volume"`
	ShortSMA  *float64 `parquet:"short_sma"`
	LongSMA   *float64 `parquet:"long_sma"`
	RSI       *float64 `parquet:"rsi"`
}

func (res Result) tradeRows() []TradeRow {
	rows := make([]TradeRow, 0, len(res.Trades))
	for _, t := range res.Trades {
		rows = append(rows, TradeRow{
			RunID:     res.RunID,
			Symbol:    res.Symbol,
			Strategy:  string(res.Strategy),
			Index:     int64(t.Index),
			Timestamp: t.Time.UnixMilli(),
			Action:    string(t.Action),
			Price:     t.Price,
			Reason:    t.Reason,
			RSI:       t.RSI,
			Profit:    t.Profit,
			ProfitPct: t.ProfitPct,
		})
	}
	return rows
}

func (res Result) chartRows() []ChartRow {
	rows := make([]ChartRow, 0, len(res.ChartData))
	for _, p := range res.ChartData {
		row := ChartRow{
			RunID:     res.RunID,
			Timestamp: p.Timestamp.UnixMilli(),
			Price:     p.Price,
			Volume:    p.Volume,
		}
		if p.ShortSMA != nil {
			row.ShortSMA = p.ShortSMA.Ptr()
		}
		if p.LongSMA != nil {
			row.LongSMA = p.LongSMA.Ptr()
		}
		if p.RSI != nil {
			row.RSI = p.RSI.Ptr()
		}
		rows = append(rows, row)
	}
	return rows
}

// ExportParquet writes the trades and the chart series of res to two
// parquet files.
func ExportParquet(res Result, tradesPath, chartPath string) error {
	if !res.Success {
		return fmt.Errorf("export parquet: backtest failed: %s", res.Error)
	}
	if err := parquet.WriteFile(tradesPath, res.tradeRows()); err != nil {
		return fmt.Errorf("writing trades parquet: %w", err)
	}
	if err := parquet.WriteFile(chartPath, res.chartRows()); err != nil {
		return fmt.Errorf("writing chart parquet: %w", err)
	}
	return nil
}
