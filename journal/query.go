package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const selectTrade = `
	SELECT trade_id, run_id, instrument, units, entry_price, exit_price, open_time, close_time, realized_pl, reason
	FROM trades`

func scanTrades(rows *sql.Rows) ([]TradeRecord, error) {
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := rows.Scan(
			&rec.TradeID,
			&rec.RunID,
			&rec.Instrument,
			&rec.Units,
			&rec.EntryPrice,
			&rec.ExitPrice,
			&rec.OpenTime,
			&rec.CloseTime,
			&rec.RealizedPL,
			&rec.Reason,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	rows, err := j.db.Query(selectTrade+` WHERE trade_id = ?`, tradeID)
	if err != nil {
		return TradeRecord{}, err
	}
	recs, err := scanTrades(rows)
	if err != nil {
		return TradeRecord{}, err
	}
	if len(recs) == 0 {
		return TradeRecord{}, fmt.Errorf("trade %q not found: %w", tradeID, sql.ErrNoRows)
	}
	return recs[0], nil
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	if !start.Before(end) {
		return nil, errors.New("start must be before end")
	}
	rows, err := j.db.Query(selectTrade+`
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	return scanTrades(rows)
}

// Stats is the win/loss tally of a set of trades.
type Stats struct {
	Trades       int
	Wins         int
	Losses       int
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
}

// Summarize tallies trades. ProfitFactor is GrossProfit/GrossLoss, or 0
// when there are no losses.
func Summarize(trades []TradeRecord) Stats {
	var s Stats
	for _, t := range trades {
		s.Trades++
		switch {
		case t.RealizedPL > 0:
			s.Wins++
			s.GrossProfit += t.RealizedPL
		case t.RealizedPL < 0:
			s.Losses++
			s.GrossLoss += -t.RealizedPL
		}
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}
