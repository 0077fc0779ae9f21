package journal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	rec := TradeRecord{
		TradeID:    "01HTZ3K9Q8W2M4N6P0R5S7T9V1-1",
		RunID:      "01HTZ3K9Q8W2M4N6P0R5S7T9V1",
		Instrument: "BTCUSDT",
		Units:      1,
		EntryPrice: 61250.5,
		ExitPrice:  60980.125,
		OpenTime:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		CloseTime:  time.Date(2024, 3, 2, 4, 0, 0, 0, time.UTC),
		RealizedPL: -270.375,
		Reason:     "SMA(10) crossed below SMA(30)",
	}

	want := strings.Join([]string{
		"** Trade: BTCUSDT (01HTZ3K9)",
		":PROPERTIES:",
		":TRADE_ID: 01HTZ3K9Q8W2M4N6P0R5S7T9V1-1",
		":ID: 01HTZ3K9Q8W2M4N6P0R5S7T9V1-1",
		":RUN_ID: 01HTZ3K9Q8W2M4N6P0R5S7T9V1",
		":INSTRUMENT: BTCUSDT",
		":UNITS: 1",
		":ENTRY_PRICE: 61250.50000",
		":EXIT_PRICE: 60980.12500",
		":OPEN_TIME: 2024-03-01T09:00:00Z",
		":CLOSE_TIME: 2024-03-02T04:00:00Z",
		":REALIZED_PL: -270.38",
		":REASON: SMA(10) crossed below SMA(30)",
		":END:",
		"*** Thesis",
		"*** Execution",
		"*** Review",
		"",
	}, "\n")
	assert.Equal(t, want, FormatTradeOrg(rec))
}

func TestFormatTradeOrgWithoutRun(t *testing.T) {
	t.Parallel()

	// Trades recorded one at a time outside a backtest have no run.
	out := FormatTradeOrg(TradeRecord{TradeID: "t1", Instrument: "ETHUSDT", Reason: "RSI(24.0) below 30 (oversold)"})
	assert.NotContains(t, out, ":RUN_ID:")
	assert.Contains(t, out, "** Trade: ETHUSDT (t1)\n")
	assert.Contains(t, out, ":REASON: RSI(24.0) below 30 (oversold)\n")
}

func TestFormatTradesOrg(t *testing.T) {
	t.Parallel()

	assert.Empty(t, FormatTradesOrg(nil))

	trades := []TradeRecord{
		{TradeID: "RUNA-1", RunID: "RUNA", Instrument: "BTCUSDT"},
		{TradeID: "RUNA-2", RunID: "RUNA", Instrument: "BTCUSDT"},
	}
	out := FormatTradesOrg(trades)
	blocks := strings.Split(out, "*** Review\n\n\n")
	require.Len(t, blocks, 2)
	assert.True(t, strings.HasPrefix(blocks[1], "** Trade: BTCUSDT (RUNA-2)"))
	assert.Equal(t, 2, strings.Count(out, ":RUN_ID: RUNA\n"))
	assert.Equal(t, FormatTradeOrg(trades[0]), FormatTradesOrg(trades[:1]))
}

func TestShortID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", shortID(""))
	assert.Equal(t, "RUNA-1", shortID("RUNA-1"))
	assert.Equal(t, "01HTZ3K9", shortID("01HTZ3K9"))
	assert.Equal(t, "01HTZ3K9", shortID("01HTZ3K9Q8W2M4N6P0R5S7T9V1-12"))
}

func TestExportBacktestOrgTradesCarryRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	j, _ := newTestSQLite(t)
	defer j.Close()

	runID := journalRun(t, j, "BTCUSDT", "bitcoin", "sma_crossover",
		roundTrip{openHour: 2, closeHour: 10, entry: 100, exit: 110, reason: smaExit},
		roundTrip{openHour: 30, closeHour: 41, entry: 112, exit: 104, reason: smaExit},
	)

	org, err := j.ExportBacktestOrg(ctx, runID)
	require.NoError(t, err)
	assert.Contains(t, org, ":RUN_ID:      "+runID+"\n")
	assert.Equal(t, 2, strings.Count(org, ":RUN_ID: "+runID+"\n"))
	assert.Contains(t, org, ":TRADE_ID: "+runID+"-2\n")
	assert.Contains(t, org, ":COIN:        bitcoin\n")
	assert.Contains(t, org, ":REASON: "+smaExit+"\n")
}
