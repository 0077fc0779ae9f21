package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

const insertTrade = `
	INSERT INTO trades
	(trade_id, run_id, instrument, units, entry_price, exit_price, open_time, close_time, realized_pl, reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertEquity = `
	INSERT INTO equity (run_id, time, balance, equity)
	VALUES (?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recordTrade(ctx context.Context, db execer, t TradeRecord) error {
	_, err := db.ExecContext(ctx, insertTrade,
		t.TradeID, t.RunID, t.Instrument, t.Units, t.EntryPrice,
		t.ExitPrice, t.OpenTime, t.CloseTime, t.RealizedPL, t.Reason,
	)
	return err
}

func recordEquity(ctx context.Context, db execer, e EquitySnapshot) error {
	_, err := db.ExecContext(ctx, insertEquity, e.RunID, e.Time, e.Balance, e.Equity)
	return err
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	return recordTrade(context.Background(), j.db, t)
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	return recordEquity(context.Background(), j.db, e)
}

// RecordBacktest stores a run with its trades and equity curve in one
// transaction. The trades and snapshots are stamped with run.RunID.
func (j *SQLite) RecordBacktest(ctx context.Context, run BacktestRun, trades []TradeRecord, equity []EquitySnapshot) error {
	if run.RunID == "" {
		return errors.New("journal: run id is required")
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs
		(run_id, created, timeframe, dataset, instrument, coin, strategy, config,
		 start_time, end_time, trades, wins, losses, start_balance, end_balance,
		 net_pl, return_pct, win_rate, profit_factor, max_dd_pct, org_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Created, run.Timeframe, run.Dataset, run.Instrument, run.Coin,
		run.Strategy, string(run.Config), run.Start, run.End, run.Trades, run.Wins,
		run.Losses, run.StartBalance, run.EndBalance, run.NetPL, run.ReturnPct,
		run.WinRate, run.ProfitFactor, run.MaxDDPct, run.OrgPath,
	)
	if err != nil {
		return fmt.Errorf("insert backtest run: %w", err)
	}

	for _, t := range trades {
		t.RunID = run.RunID
		if err := recordTrade(ctx, tx, t); err != nil {
			return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
		}
	}
	for _, e := range equity {
		e.RunID = run.RunID
		if err := recordEquity(ctx, tx, e); err != nil {
			return fmt.Errorf("insert equity: %w", err)
		}
	}

	return tx.Commit()
}

const selectRun = `
	SELECT run_id, created, timeframe, dataset, instrument, coin, strategy, config,
	       start_time, end_time, trades, wins, losses, start_balance, end_balance,
	       net_pl, return_pct, win_rate, profit_factor, max_dd_pct, org_path
	FROM backtest_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (BacktestRun, error) {
	var (
		r      BacktestRun
		config string
	)
	err := s.Scan(
		&r.RunID, &r.Created, &r.Timeframe, &r.Dataset, &r.Instrument, &r.Coin,
		&r.Strategy, &config, &r.Start, &r.End, &r.Trades, &r.Wins, &r.Losses,
		&r.StartBalance, &r.EndBalance, &r.NetPL, &r.ReturnPct, &r.WinRate,
		&r.ProfitFactor, &r.MaxDDPct, &r.OrgPath,
	)
	r.Config = []byte(config)
	return r, err
}

func (j *SQLite) GetBacktestRun(ctx context.Context, runID string) (BacktestRun, error) {
	r, err := scanRun(j.db.QueryRowContext(ctx, selectRun+` WHERE run_id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BacktestRun{}, fmt.Errorf("backtest run %q not found", runID)
		}
		return BacktestRun{}, err
	}
	return r, nil
}

// ListBacktestRuns returns the most recent runs first.
func (j *SQLite) ListBacktestRuns(ctx context.Context, limit int) ([]BacktestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, selectRun+` ORDER BY created DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BacktestRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLite) ListTradesByRunID(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, selectTrade+`
		WHERE run_id = ?
		ORDER BY close_time ASC`, runID)
	if err != nil {
		return nil, err
	}
	return scanTrades(rows)
}

func (j *SQLite) ListEquityByRunID(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, time, balance, equity
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Time, &e.Balance, &e.Equity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExportBacktestOrg loads a run and its trades and returns the Org block.
func (j *SQLite) ExportBacktestOrg(ctx context.Context, runID string) (string, error) {
	run, err := j.GetBacktestRun(ctx, runID)
	if err != nil {
		return "", err
	}
	trades, err := j.ListTradesByRunID(ctx, runID)
	if err != nil {
		return "", err
	}

	out, err := run.RenderOrg()
	if err != nil {
		return "", err
	}
	if len(trades) > 0 {
		out += "\n" + FormatTradesOrg(trades)
	}
	return out, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
