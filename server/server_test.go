package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rustyeddy/papertrader/backtest"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/ledger"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeHistory map[string][]market.Candle

func (f fakeHistory) ResolveSymbol(coin string) (string, error) { return market.ResolveSymbol(coin) }

func (f fakeHistory) History(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	return market.Tail(f[symbol], limit), nil
}

type quotes map[string]float64

func (q quotes) Price(ctx context.Context, coin string) (float64, error) {
	p, ok := q[coin]
	if !ok {
		return 0, errors.New("no quote")
	}
	return p, nil
}

func candles(closes ...float64) []market.Candle {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Time: t0.Add(time.Duration(i) * time.Hour), Close: c, Volume: 1}
	}
	return out
}

type testServer struct {
	h       *Handler
	journal *journal.SQLite
	hook    *test.Hook
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()

	repo, err := ledger.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	l := ledger.New(repo, ledger.WithLogger(logger))

	j, err := journal.NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	q := quotes{"bitcoin": 120}
	h := NewHandler(Deps{
		Runner: &backtest.Runner{
			History: fakeHistory{"BTCUSDT": candles(1, 1, 1, 5, 5, 5, 1, 1, 1)},
			Log:     logger,
		},
		Ledger:    l,
		Portfolio: &portfolio.Service{Ledger: l, Quotes: q, Log: logger},
		Journal:   j,
		Dataset:   "test",
		Quotes:    q,
		Log:       logger,
	})
	return testServer{h: h, journal: j, hook: hook}
}

func (s testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestRunBacktest(t *testing.T) {
	s := newTestServer(t)

	w, out := s.do(t, http.MethodPost, "/api/backtest/run", map[string]any{
		"coin":     "bitcoin",
		"strategy": "sma_crossover",
		"params":   map[string]float64{"short_period": 2, "long_period": 3},
		"days":     1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])

	data := out["data"].(map[string]any)
	assert.Equal(t, "BTCUSDT", data["symbol"])
	assert.Len(t, data["trades"], 2)
	metrics := data["metrics"].(map[string]any)
	assert.Equal(t, -4.0, metrics["total_profit"])

	runs, err := s.journal.ListBacktestRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, data["run_id"], runs[0].RunID)
	assert.Equal(t, "test", runs[0].Dataset)
}

func TestRunBacktest_Failures(t *testing.T) {
	s := newTestServer(t)

	w, out := s.do(t, http.MethodPost, "/api/backtest/run", map[string]any{"coin": "bitcoin", "strategy": "macd"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["success"])
	data := out["data"].(map[string]any)
	assert.Contains(t, data["error"], "unknown strategy")
	assert.Equal(t, []any{}, data["trades"])

	// Nine candles cannot warm up a 30-period average.
	w, out = s.do(t, http.MethodPost, "/api/backtest/run", map[string]any{"coin": "bitcoin", "strategy": "sma_crossover"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["success"])

	w, out = s.do(t, http.MethodPost, "/api/backtest/run", map[string]any{
		"coin": "bitcoin", "strategy": "rsi", "params": map[string]float64{"oversold": 80},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, out["error"], "oversold")

	w, _ = s.do(t, http.MethodPost, "/api/backtest/run", map[string]any{"coin": "bitcoin", "days": "many"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	runs, err := s.journal.ListBacktestRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "failed runs are not journaled")
}

func TestSweepAndListRuns(t *testing.T) {
	s := newTestServer(t)
	req := map[string]any{
		"coin": "bitcoin", "strategy": "sma_crossover",
		"params": map[string]float64{"short_period": 2, "long_period": 3},
	}

	w, out := s.do(t, http.MethodPost, "/api/backtest/sweep", map[string]any{
		"requests":    []any{req, req, map[string]any{"coin": "bitcoin", "strategy": "macd"}},
		"parallelism": 2,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["data"], 3)

	w, out = s.do(t, http.MethodGet, "/api/backtest/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, out["data"], 2)

	w, _ = s.do(t, http.MethodGet, "/api/backtest/runs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/backtest/sweep", map[string]any{"requests": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecuteTradeAndPortfolio(t *testing.T) {
	s := newTestServer(t)

	w, out := s.do(t, http.MethodPost, "/api/trades/execute", map[string]any{
		"coin": "bitcoin", "side": "buy", "amount": 1, "price": 100,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Bought 1 bitcoin for $100.00", out["message"])

	w, out = s.do(t, http.MethodPost, "/api/trades/execute", map[string]any{
		"coin": "bitcoin", "side": "sell", "amount": 2, "price": 100,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Insufficient bitcoin balance.", out["message"])

	w, out = s.do(t, http.MethodPost, "/api/trades/execute", map[string]any{
		"coin": "bitcoin", "side": "hold", "amount": 1, "price": 100,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, out["success"])

	w, out = s.do(t, http.MethodGet, "/api/portfolio", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := out["data"].(map[string]any)
	assert.Equal(t, 9900.0, data["balance"])
	btc := data["holdings"].(map[string]any)["bitcoin"].(map[string]any)
	assert.Equal(t, 120.0, btc["current_value"])
	assert.Len(t, data["history"], 1)
	assert.Contains(t, data["suggestions"], "High concentration")

	w, out = s.do(t, http.MethodPost, "/api/portfolio/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	acct := out["data"].(map[string]any)
	assert.Equal(t, 10000.0, acct["usd_balance"])
	assert.Empty(t, acct["history"])
}

func TestCurrentPrice(t *testing.T) {
	s := newTestServer(t)

	w, out := s.do(t, http.MethodGet, "/api/prices/current/bitcoin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 120.0, out["data"].(map[string]any)["usd"])

	w, _ = s.do(t, http.MethodGet, "/api/prices/current/solana", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodGet, "/api/portfolio", nil)
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	entry := s.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, id, entry.Data["request_id"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])

	given := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/portfolio", nil)
	req.Header.Set(RequestIDHeader, given)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	assert.Equal(t, given, rec.Header().Get(RequestIDHeader))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(market.Invalid("coin", "empty")))
	assert.Equal(t, http.StatusBadGateway, statusFor(market.ErrDataUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
