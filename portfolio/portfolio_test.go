package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rustyeddy/papertrader/ledger"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticQuotes map[string]float64

func (q staticQuotes) Price(ctx context.Context, coin string) (float64, error) {
	p, ok := q[coin]
	if !ok {
		return 0, errors.New("no quote")
	}
	return p, nil
}

func newService(t *testing.T, quotes PriceQuoter) (*Service, *test.Hook) {
	t.Helper()
	repo, err := ledger.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()
	return &Service{
		Ledger: ledger.New(repo, ledger.WithLogger(logger)),
		Quotes: quotes,
		Log:    logger,
	}, hook
}

func trade(t *testing.T, s *Service, side, coin string, amount, price float64) {
	t.Helper()
	res, err := s.Ledger.ExecuteTrade(context.Background(), ledger.TradeRequest{Coin: coin, Side: side, Amount: amount, Price: price})
	require.NoError(t, err)
	require.True(t, res.Success, res.Message)
}

func TestSummary_Empty(t *testing.T) {
	s, _ := newService(t, staticQuotes{})

	sum, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, sum.Balance)
	assert.Empty(t, sum.Holdings)
	assert.Equal(t, 10000.0, sum.TotalValue)
	assert.Zero(t, sum.Metrics.SharpeRatio)
	assert.Zero(t, sum.Metrics.MaxDrawdown)
	assert.Zero(t, sum.Metrics.WinRate)
	assert.Equal(t, "No holdings to analyze.", sum.Suggestions)

	b, err := json.Marshal(sum)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"history":[]`)
}

func TestSummary_ValuesHoldings(t *testing.T) {
	s, _ := newService(t, staticQuotes{"bitcoin": 200, "ethereum": 10})

	trade(t, s, "buy", "bitcoin", 2, 100)
	trade(t, s, "buy", "ethereum", 10, 20)
	trade(t, s, "sell", "ethereum", 10, 30)
	trade(t, s, "buy", "ethereum", 5, 10)

	sum, err := s.Summary(context.Background())
	require.NoError(t, err)

	// 10000 - 200 - 200 + 300 - 50
	assert.Equal(t, 9850.0, sum.Balance)
	require.Len(t, sum.Holdings, 2)
	assert.Equal(t, Holding{Amount: 2, CurrentPrice: 200, CurrentValue: 400}, sum.Holdings["bitcoin"])
	assert.Equal(t, Holding{Amount: 5, CurrentPrice: 10, CurrentValue: 50}, sum.Holdings["ethereum"])
	assert.Equal(t, 10300.0, sum.TotalValue)
	assert.Len(t, sum.History, 4)
	assert.Equal(t, 100.0, sum.Metrics.WinRate)
	assert.Equal(t, "High concentration: 88.9% in BITCOIN. Consider diversifying.", sum.Suggestions)
}

func TestSummary_SoldOutCoinsAreHidden(t *testing.T) {
	s, _ := newService(t, staticQuotes{"bitcoin": 100})
	trade(t, s, "buy", "bitcoin", 1, 100)
	trade(t, s, "sell", "bitcoin", 1, 90)

	sum, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sum.Holdings)
	assert.Equal(t, 9990.0, sum.Balance)
	assert.Equal(t, 0.0, sum.Metrics.WinRate)
	assert.Equal(t, 1.0, sum.Metrics.MaxDrawdown)
}

func TestSummary_MissingQuote(t *testing.T) {
	s, hook := newService(t, staticQuotes{})
	trade(t, s, "buy", "solana", 3, 10)

	sum, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Holding{Amount: 3}, sum.Holdings["solana"])
	assert.Equal(t, "No holdings to analyze.", sum.Suggestions)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["coin"] == "solana" {
			warned = true
		}
	}
	assert.True(t, warned, "missing quote is logged")
}

func TestSuggestions(t *testing.T) {
	tests := []struct {
		name     string
		holdings map[string]float64
		want     string
	}{
		{"none", nil, "No holdings to analyze."},
		{"zero value", map[string]float64{"bitcoin": 0}, "No holdings to analyze."},
		{"single", map[string]float64{"bitcoin": 10}, "High concentration: 100.0% in BITCOIN. Consider diversifying."},
		{"moderate", map[string]float64{"bitcoin": 60, "ethereum": 40}, "Moderate concentration: 60.0% in BITCOIN."},
		{"exactly seventy", map[string]float64{"bitcoin": 70, "ethereum": 30}, "Moderate concentration: 70.0% in BITCOIN."},
		{"balanced", map[string]float64{"bitcoin": 50, "ethereum": 30, "solana": 20}, "Portfolio is well-diversified!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var coins []string
			holdings := map[string]Holding{}
			for _, c := range []string{"bitcoin", "ethereum", "solana"} {
				if v, ok := tt.holdings[c]; ok {
					coins = append(coins, c)
					holdings[c] = Holding{CurrentValue: v}
				}
			}
			assert.Equal(t, tt.want, Suggestions(coins, holdings))
		})
	}
}
