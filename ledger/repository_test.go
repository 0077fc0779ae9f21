package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAccount(id string) Account {
	buy := dec("100")
	profit := dec("50")
	acct := newAccount(id, dec("10050"))
	acct.Holdings["bitcoin"] = dec("0")
	acct.Holdings["ethereum"] = dec("0.25")
	acct.History = append(acct.History,
		Record{ID: "01A", Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Side: Buy, Coin: "bitcoin",
			Amount: dec("1"), Price: dec("100"), Total: dec("100")},
		Record{ID: "01B", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Side: Sell, Coin: "bitcoin",
			Amount: dec("1"), Price: dec("150"), Total: dec("150"), BuyPrice: &buy, Profit: &profit},
	)
	return acct
}

func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	_, err := repo.Load(ctx, "alice")
	assert.True(t, errors.Is(err, ErrAccountNotFound))

	acct := sampleAccount("alice")
	require.NoError(t, repo.Save(ctx, &acct))
	assert.Equal(t, int64(1), acct.Version)

	got, err := repo.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.USDBalance.Equal(dec("10050")))
	assert.True(t, got.Holding("ethereum").Equal(dec("0.25")))
	require.Len(t, got.History, 2)
	require.NotNil(t, got.History[1].Profit)
	assert.True(t, got.History[1].Profit.Equal(dec("50")))
	assert.Nil(t, got.History[0].Profit)

	// A second writer holding the old version loses.
	stale := got.Clone()
	got.USDBalance = dec("1")
	require.NoError(t, repo.Save(ctx, &got))
	assert.Equal(t, int64(2), got.Version)

	stale.USDBalance = dec("2")
	err = repo.Save(ctx, &stale)
	assert.True(t, errors.Is(err, ErrVersionConflict))
	assert.Equal(t, int64(1), stale.Version)

	// Creating an account that already exists is a conflict too.
	dup := sampleAccount("alice")
	err = repo.Save(ctx, &dup)
	assert.True(t, errors.Is(err, ErrVersionConflict))

	final, err := repo.Load(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, final.USDBalance.Equal(dec("1")))
}

func TestFileRepository(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir())
	require.NoError(t, err)
	exerciseRepository(t, repo)
}

func TestFileRepository_TwoInstancesShareVersion(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, err := NewFileRepository(dir)
	require.NoError(t, err)
	b, err := NewFileRepository(dir)
	require.NoError(t, err)

	acct := sampleAccount("shared")
	require.NoError(t, a.Save(ctx, &acct))

	fromA, err := a.Load(ctx, "shared")
	require.NoError(t, err)
	fromB, err := b.Load(ctx, "shared")
	require.NoError(t, err)

	fromA.USDBalance = dec("1")
	fromB.USDBalance = dec("2")

	errs := make(chan error, 2)
	go func() { errs <- a.Save(ctx, &fromA) }()
	go func() { errs <- b.Save(ctx, &fromB) }()

	var saved, conflicts int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
			saved++
		case errors.Is(err, ErrVersionConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, saved)
	assert.Equal(t, 1, conflicts)

	final, err := b.Load(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Version)
	assert.FileExists(t, filepath.Join(dir, "shared.lock"))
}

func TestFileRepository_SaveHonorsContextWhileLocked(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileRepository(dir)
	require.NoError(t, err)

	held := flock.New(filepath.Join(dir, "busy.lock"))
	require.NoError(t, held.Lock())
	defer held.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	acct := sampleAccount("busy")
	err = repo.Save(ctx, &acct)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = repo.Load(context.Background(), "busy")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer repo.Close()
	exerciseRepository(t, repo)
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("PAPERTRADER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PAPERTRADER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	repo, err := NewPostgresRepository(ctx, dsn)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.pool.Exec(ctx, `DELETE FROM accounts WHERE id = 'alice'`)
	require.NoError(t, err)
	exerciseRepository(t, repo)
}

func TestFileRepository_PersistedFormat(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileRepository(dir)
	require.NoError(t, err)

	acct := sampleAccount("default")
	require.NoError(t, repo.Save(context.Background(), &acct))

	data, err := os.ReadFile(filepath.Join(dir, "default.json"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, 10050.0, raw["usd_balance"], "balance is a JSON number")
	holdings := raw["holdings"].(map[string]any)
	assert.Equal(t, 0.25, holdings["ethereum"])

	history := raw["history"].([]any)
	require.Len(t, history, 2)
	first := history[0].(map[string]any)
	for _, k := range []string{"timestamp", "side", "coin", "amount", "price", "total"} {
		assert.Contains(t, first, k)
	}
	assert.NotContains(t, first, "profit")

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileRepository_CorruptFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileRepository(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(repo.Path("default"), []byte("{not json"), 0o644))

	_, err = repo.Load(context.Background(), "default")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAccountNotFound))

	l := New(repo)
	_, err = l.ExecuteTrade(context.Background(), TradeRequest{Coin: "bitcoin", Side: "buy", Amount: 1, Price: 1})
	require.Error(t, err)

	data, err := os.ReadFile(repo.Path("default"))
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestFileRepository_RejectsPathIDs(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir())
	require.NoError(t, err)
	_, err = repo.Load(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}
