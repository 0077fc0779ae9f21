package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	record TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// SQLiteRepository keeps accounts in a single SQLite table. The version
// check is part of the UPDATE so it holds across processes.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Load(ctx context.Context, id string) (Account, error) {
	var (
		version int64
		record  string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT version, record FROM accounts WHERE id = ?`, id,
	).Scan(&version, &record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return Account{}, err
	}

	var acct Account
	if err := json.Unmarshal([]byte(record), &acct); err != nil {
		return Account{}, fmt.Errorf("ledger: decode account %s: %w", id, err)
	}
	acct.Version = version
	return acct, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, acct *Account) error {
	next := *acct
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var res sql.Result
	if acct.Version == 0 {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO accounts (id, version, record, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			acct.ID, next.Version, string(data), now)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE accounts SET version = ?, record = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			next.Version, string(data), now, acct.ID, acct.Version)
	}
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s loaded=%d", ErrVersionConflict, acct.ID, acct.Version)
	}
	acct.Version = next.Version
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
