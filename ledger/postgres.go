package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	version BIGINT NOT NULL,
	record JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresRepository is the pgx-backed Repository for shared deployments.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create accounts table: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Load(ctx context.Context, id string) (Account, error) {
	var (
		version int64
		record  []byte
	)
	row := r.pool.QueryRow(ctx, `SELECT version, record FROM accounts WHERE id = $1`, id)
	if err := row.Scan(&version, &record); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return Account{}, err
	}

	var acct Account
	if err := json.Unmarshal(record, &acct); err != nil {
		return Account{}, fmt.Errorf("ledger: decode account %s: %w", id, err)
	}
	acct.Version = version
	return acct, nil
}

const (
	insertAccountQuery = `
	INSERT INTO accounts (id, version, record, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (id) DO NOTHING`

	updateAccountQuery = `
	UPDATE accounts SET version = $2, record = $3, updated_at = now()
	WHERE id = $1 AND version = $4`
)

func (r *PostgresRepository) Save(ctx context.Context, acct *Account) error {
	next := *acct
	next.Version++
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}

	var n int64
	if acct.Version == 0 {
		tag, err := r.pool.Exec(ctx, insertAccountQuery, acct.ID, next.Version, data)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
	} else {
		tag, err := r.pool.Exec(ctx, updateAccountQuery, acct.ID, next.Version, data, acct.Version)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
	}
	if n == 0 {
		return fmt.Errorf("%w: %s loaded=%d", ErrVersionConflict, acct.ID, acct.Version)
	}
	acct.Version = next.Version
	return nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.pool == nil {
		return nil
	}
	r.pool.Close()
	return nil
}
